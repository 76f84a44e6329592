package repository

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"solarcrm/internal/pipeline"
)

// 路径片段直接拼进 SQL，只允许标识符字符
var pathSegment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlBuilder 收集占位符参数
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// CompilePredicate 把候选条件翻译为 projects.doc 上的 WHERE 子句。
// 时间字段经 doc_ts() 解析，与内存中 Record.Time 的识别规则一致
func CompilePredicate(p pipeline.Predicate) (string, []any, error) {
	b := &sqlBuilder{}
	where, err := b.compile(p)
	if err != nil {
		return "", nil, err
	}
	return where, b.args, nil
}

func (b *sqlBuilder) compile(p pipeline.Predicate) (string, error) {
	switch pred := p.(type) {
	case pipeline.And:
		return b.join(pred, "AND", "TRUE")
	case pipeline.Or:
		return b.join(pred, "OR", "FALSE")
	case pipeline.Between:
		expr, err := timeExpr(pred.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", expr, b.arg(pred.From), b.arg(pred.To)), nil
	case pipeline.Present:
		expr, err := timeExpr(pred.Field)
		if err != nil {
			return "", err
		}
		return expr + " IS NOT NULL", nil
	case pipeline.Absent:
		expr, err := timeExpr(pred.Field)
		if err != nil {
			return "", err
		}
		return expr + " IS NULL", nil
	case pipeline.Eq:
		expr, err := textExpr(pred.Field)
		if err != nil {
			return "", err
		}
		return expr + " = " + b.arg(pred.Value), nil
	case pipeline.In:
		expr, err := textExpr(pred.Field)
		if err != nil {
			return "", err
		}
		return expr + " = ANY(" + b.arg(pred.Values) + ")", nil
	case nil:
		return "TRUE", nil
	default:
		return "", fmt.Errorf("unsupported predicate %T", p)
	}
}

func (b *sqlBuilder) join(ps []pipeline.Predicate, op, empty string) (string, error) {
	if len(ps) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		s, err := b.compile(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", nil
}

// pathLiteral contracting.requestDate -> '{contracting,requestDate}'
func pathLiteral(f pipeline.Field) (string, error) {
	segs := f.Path()
	for _, s := range segs {
		if !pathSegment.MatchString(s) {
			return "", fmt.Errorf("invalid field path %q", f)
		}
	}
	return "'{" + strings.Join(segs, ",") + "}'", nil
}

func textExpr(f pipeline.Field) (string, error) {
	lit, err := pathLiteral(f)
	if err != nil {
		return "", err
	}
	return "(doc #>> " + lit + ")", nil
}

func timeExpr(f pipeline.Field) (string, error) {
	expr, err := textExpr(f)
	if err != nil {
		return "", err
	}
	return "doc_ts" + expr, nil
}

// BuildProjection 用 jsonb_build_object 只取出需要的字段，保持原文档的嵌套结构
func BuildProjection(fields []pipeline.Field) (string, error) {
	root := &projNode{children: map[string]*projNode{}}
	for _, f := range fields {
		if _, err := pathLiteral(f); err != nil {
			return "", err
		}
		root.insert(f.Path())
	}
	if len(root.children) == 0 {
		return "'{}'::jsonb", nil
	}
	return root.render(nil), nil
}

type projNode struct {
	children map[string]*projNode
	leaf     bool
}

func (n *projNode) insert(path []string) {
	cur := n
	for _, seg := range path {
		next, ok := cur.children[seg]
		if !ok {
			next = &projNode{children: map[string]*projNode{}}
			cur.children[seg] = next
		}
		cur = next
	}
	cur.leaf = true
}

func (n *projNode) render(prefix []string) string {
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		child := n.children[k]
		path := append(append([]string{}, prefix...), k)
		var value string
		if child.leaf {
			// 叶子取整个值，即使它下面还有被引用的子路径
			value = "doc #> '{" + strings.Join(path, ",") + "}'"
		} else {
			value = child.render(path)
		}
		pairs = append(pairs, "'"+k+"', "+value)
	}
	return "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
}
