package domain

// Field is one title/value pair inside an attachment.
// Short marks a field that may sit side-by-side with an adjacent short field.
type Field struct {
	Title string `json:"title" yaml:"title"`
	Value string `json:"value" yaml:"value"`
	Short bool   `json:"short,omitempty" yaml:"short,omitempty"`
}

// Attachment is a loosely structured card of information. Every string is
// optional; the empty string means absent.
type Attachment struct {
	Title      string  `json:"title,omitempty" yaml:"title,omitempty"`
	TitleLink  string  `json:"title_link,omitempty" yaml:"title_link,omitempty"`
	Text       string  `json:"text,omitempty" yaml:"text,omitempty"`
	Pretext    string  `json:"pretext,omitempty" yaml:"pretext,omitempty"`
	Fallback   string  `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Color      string  `json:"color,omitempty" yaml:"color,omitempty"`
	AuthorName string  `json:"author_name,omitempty" yaml:"author_name,omitempty"`
	AuthorLink string  `json:"author_link,omitempty" yaml:"author_link,omitempty"`
	AuthorIcon string  `json:"author_icon,omitempty" yaml:"author_icon,omitempty"`
	ImageURL   string  `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	ThumbURL   string  `json:"thumb_url,omitempty" yaml:"thumb_url,omitempty"`
	Footer     string  `json:"footer,omitempty" yaml:"footer,omitempty"`
	FooterIcon string  `json:"footer_icon,omitempty" yaml:"footer_icon,omitempty"`
	Fields     []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}
