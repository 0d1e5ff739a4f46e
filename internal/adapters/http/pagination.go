package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// maxPageSize bounds a single page. Listing is meant for hydration and
// administrative paging; bulk export goes through the ingestor instead.
const maxPageSize = 500

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination carries offset-based paging state. Total is the full count of
// matching rows, not the page size.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// ParsePagination reads offset/limit query parameters, flooring negative
// values and capping limit at maxPageSize.
func ParsePagination(c *fiber.Ctx, defaultLimit int) (offset, limit int) {
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit = c.QueryInt("limit", defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}

// SetLinkHeaders publishes RFC 8288 Link relations (first/prev/next/last)
// for the page described by p, relative to the current request path.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	base := c.Path()
	var b strings.Builder

	writeRel := func(offset int, rel string) {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `<%s?offset=%d&limit=%d>; rel=%q`, base, offset, p.Limit, rel)
	}

	writeRel(0, "first")
	if p.Offset > 0 {
		prev := max(p.Offset-p.Limit, 0)
		writeRel(prev, "prev")
	}
	if next := p.Offset + p.Limit; next < p.Total {
		writeRel(next, "next")
	}
	writeRel(max(p.Total-p.Limit, 0), "last")

	c.Set(fiber.HeaderLink, b.String())
}
