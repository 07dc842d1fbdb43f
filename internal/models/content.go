package models

// ContentType distinguishes App Story articles from News
type ContentType string

const (
	ContentTypeAppStory ContentType = "appstory"
	ContentTypeNews     ContentType = "news"
)

// ValidContentTypes defines the known content types
var ValidContentTypes = map[ContentType]bool{
	ContentTypeAppStory: true,
	ContentTypeNews:     true,
}

// ContentItem is an App Story or News article. Content holds markdown-like
// text using **bold**, *italic* and \n conventions.
type ContentItem struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Author      string      `json:"author"`
	Type        ContentType `json:"type"`
	Tags        []string    `json:"tags"`
	IsPublished bool        `json:"isPublished"`
	PublishDate string      `json:"publishDate"`
	Views       int         `json:"views"`
	ImageURL    string      `json:"imageUrl,omitempty"`
}

// ContentUpdate carries the editable fields of a content item
type ContentUpdate struct {
	Title       *string   `json:"title,omitempty"`
	Content     *string   `json:"content,omitempty"`
	Author      *string   `json:"author,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	IsPublished *bool     `json:"isPublished,omitempty"`
	PublishDate *string   `json:"publishDate,omitempty"`
	ImageURL    *string   `json:"imageUrl,omitempty"`
}

// ContentFilter narrows a content listing
type ContentFilter struct {
	Type      ContentType
	Published *bool
}
