package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages from a Notion database, following cursors. The
// next page is fetched in the background while the current one is appended.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	newReq := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var next <-chan result

	var all []notionapi.Page
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}

		var resp *notionapi.DatabaseQueryResponse
		var err error
		if next != nil {
			r := <-next
			resp, err = r.resp, r.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, newReq(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}

		ch := make(chan result, 1)
		next = ch
		req := newReq(resp.NextCursor)
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, req)
			ch <- result{resp: r, err: e}
		}()
	}
}

// QueryGraded fetches the pages whose select property has a value.
func QueryGraded(ctx context.Context, c Client, dbID, property string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			Select:   &notionapi.SelectFilterCondition{IsNotEmpty: true},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query graded pages")
	}
	return pages, nil
}

// SelectValue returns the name of a select property, or "".
func SelectValue(p notionapi.Page, name string) string {
	if sp, ok := p.Properties[name].(*notionapi.SelectProperty); ok {
		return sp.Select.Name
	}
	return ""
}

// TextValue returns the plain text of a title or rich text property.
func TextValue(p notionapi.Page, name string) string {
	var parts []notionapi.RichText
	switch v := p.Properties[name].(type) {
	case *notionapi.TitleProperty:
		parts = v.Title
	case *notionapi.RichTextProperty:
		parts = v.RichText
	default:
		return ""
	}
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

// RichText builds a rich text value from plain text, split to fit Notion's
// 2000 character limit per text object.
func RichText(s string) []notionapi.RichText {
	const limit = 2000
	var out []notionapi.RichText
	r := []rune(s)
	for len(r) > 0 {
		n := min(len(r), limit)
		out = append(out, notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: string(r[:n])}})
		r = r[n:]
	}
	return out
}
