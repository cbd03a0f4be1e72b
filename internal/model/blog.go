package model

import "time"

// Blog is a published article.  LikerIDs behaves as a set; Comments are
// append-only and kept in insertion order.
type Blog struct {
	ID         string        `json:"id"`
	AuthorID   string        `json:"authorId"`
	Author     *UserRef      `json:"author,omitempty"`
	Title      string        `json:"title"`
	Body       string        `json:"body"`
	Tags       []string      `json:"tags"`
	CoverImage *string       `json:"coverImage,omitempty"`
	LikerIDs   []string      `json:"likerIds"`
	Comments   []BlogComment `json:"comments"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type BlogComment struct {
	AuthorID  string    `json:"authorId"`
	Author    *UserRef  `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
