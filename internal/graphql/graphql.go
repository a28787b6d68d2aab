// Package graphql serves the platform's read-only query language endpoint.
// Documents are parsed and validated by gqlparser against a fixed schema;
// execution walks the validated selection sets directly.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/aabbtree77/headless/internal/store"
)

const schemaSDL = `
type Query {
  posts(limit: Int): [Post!]!
  post(id: ID!): Post
}

type Post {
  id: ID!
  title: String!
  body: String!
  status: String!
  createdAt: String!
}
`

var schema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})

// Posts is the data the executor resolves against.
type Posts interface {
	ListPublished(ctx context.Context, limit int) ([]store.Post, error)
	Get(ctx context.Context, id uuid.UUID) (store.Post, error)
}

// Request is a decoded query-language request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response follows the usual data/errors shape.
type Response struct {
	Data   any           `json:"data"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

type Executor struct {
	Posts Posts
}

// Execute runs req. Parse and validation failures come back with nil data;
// resolver failures null the affected field and add a located error.
func (e *Executor) Execute(ctx context.Context, req Request) Response {
	doc, errs := gqlparser.LoadQuery(schema, req.Query)
	if len(errs) > 0 {
		return Response{Errors: errs}
	}

	op, err := pickOperation(doc, req.OperationName)
	if err != nil {
		return Response{Errors: gqlerror.List{gqlerror.Errorf("%s", err.Error())}}
	}
	if op.Operation != ast.Query {
		return Response{Errors: gqlerror.List{gqlerror.Errorf("only query operations are supported")}}
	}

	ex := &execution{ctx: ctx, posts: e.Posts, vars: req.Variables}
	data := ex.query(op.SelectionSet)
	return Response{Data: data, Errors: ex.errs}
}

func pickOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) != 1 {
			return nil, errors.New("operationName is required when the document has several operations")
		}
		return doc.Operations[0], nil
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("unknown operation %q", name)
}

type execution struct {
	ctx   context.Context
	posts Posts
	vars  map[string]any
	errs  gqlerror.List
}

func (ex *execution) fail(path ast.Path, err error) {
	e := gqlerror.Errorf("%s", err.Error())
	e.Path = path
	ex.errs = append(ex.errs, e)
}

func (ex *execution) query(set ast.SelectionSet) object {
	var out object
	for _, f := range collectFields(set) {
		path := ast.Path{ast.PathName(f.responseKey())}
		switch f.Name {
		case "__typename":
			out = append(out, entry{f.responseKey(), "Query"})
		case "posts":
			limit := 0
			if v, ok := f.ArgumentMap(ex.vars)["limit"]; ok && v != nil {
				limit = toInt(v)
			}
			posts, err := ex.posts.ListPublished(ex.ctx, limit)
			if err != nil {
				ex.fail(path, err)
				out = append(out, entry{f.responseKey(), nil})
				continue
			}
			list := make([]any, 0, len(posts))
			for _, p := range posts {
				list = append(list, postObject(p, f.SelectionSet))
			}
			out = append(out, entry{f.responseKey(), list})
		case "post":
			raw, _ := f.ArgumentMap(ex.vars)["id"].(string)
			id, err := uuid.Parse(raw)
			if err != nil {
				out = append(out, entry{f.responseKey(), nil})
				continue
			}
			p, err := ex.posts.Get(ex.ctx, id)
			switch {
			case errors.Is(err, store.ErrNotFound):
				out = append(out, entry{f.responseKey(), nil})
			case err != nil:
				ex.fail(path, err)
				out = append(out, entry{f.responseKey(), nil})
			// Drafts are invisible here, like in the data API listing.
			case p.Status != store.PostPublished:
				out = append(out, entry{f.responseKey(), nil})
			default:
				out = append(out, entry{f.responseKey(), postObject(p, f.SelectionSet)})
			}
		}
	}
	return out
}

func postObject(p store.Post, set ast.SelectionSet) object {
	var out object
	for _, f := range collectFields(set) {
		var v any
		switch f.Name {
		case "__typename":
			v = "Post"
		case "id":
			v = p.ID.String()
		case "title":
			v = p.Title
		case "body":
			v = p.Body
		case "status":
			v = p.Status
		case "createdAt":
			v = p.CreatedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, entry{f.responseKey(), v})
	}
	return out
}

// field is one response key. SelectionSet joins the sub-selections of every
// field merged under that key.
type field struct {
	*ast.Field
	SelectionSet ast.SelectionSet
}

func (f *field) responseKey() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// collectFields flattens fragments and merges fields that share a response
// key. The schema has no interfaces or unions, so every fragment applies.
func collectFields(set ast.SelectionSet) []*field {
	var out []*field
	byKey := map[string]*field{}
	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				f := &field{Field: s}
				if prev, ok := byKey[f.responseKey()]; ok {
					prev.SelectionSet = append(prev.SelectionSet, s.SelectionSet...)
					continue
				}
				f.SelectionSet = append(ast.SelectionSet(nil), s.SelectionSet...)
				byKey[f.responseKey()] = f
				out = append(out, f)
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if s.Definition != nil {
					walk(s.Definition.SelectionSet)
				}
			}
		}
	}
	walk(set)
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

// object is a JSON object that keeps selection order.
type object []entry

type entry struct {
	key   string
	value any
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
