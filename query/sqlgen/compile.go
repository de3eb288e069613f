package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/singlefetch/singlefetch/query"
	"github.com/singlefetch/singlefetch/schema"
)

// selectOpts carries compile variations used by the count and aggregate
// rewrites.
type selectOpts struct {
	// dropOrdering omits ORDER BY; ordering never changes what an unsliced
	// query counts or aggregates to.
	dropOrdering bool
}

// exprRefPattern matches {column} references in annotation expressions.
var exprRefPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func compileSelect(g Generator, qs *query.Queryset, opts selectOpts) (*CompiledSelect, error) {
	entity := qs.Entity()
	if entity == nil {
		return nil, fmt.Errorf("queryset has no entity")
	}
	if qs.IsNone() {
		return nil, ErrEmptyResultSet
	}
	if n, ok := qs.Limit(); ok && n <= 0 {
		return nil, ErrEmptyResultSet
	}

	var parts []string
	var params []interface{}
	argIndex := 1

	plan, joins, err := buildPlan(g, qs)
	if err != nil {
		return nil, err
	}

	sel, cols, groupRefs, selectedAnns, err := buildSelectList(g, qs, plan)
	if err != nil {
		return nil, err
	}

	head := "SELECT "
	if qs.IsDistinct() {
		head = "SELECT DISTINCT "
	}
	parts = append(parts, head+strings.Join(sel, ", "))
	parts = append(parts, fmt.Sprintf("FROM %s AS t0", g.QuoteIdentifier(entity.Table)))
	parts = append(parts, joins...)

	whereSQL, whereParams, err := buildWhere(g, entity, qs.Conditions(), &argIndex)
	if err != nil {
		return nil, err
	}
	if whereSQL != "" {
		parts = append(parts, "WHERE "+whereSQL)
		params = append(params, whereParams...)
	}

	if hasAggregateIn(selectedAnns) && len(groupRefs) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(groupRefs, ", "))
	}

	if !opts.dropOrdering && len(qs.Ordering()) > 0 {
		orderSQL, err := buildOrdering(g, entity, qs.Ordering(), selectedAnns)
		if err != nil {
			return nil, err
		}
		parts = append(parts, "ORDER BY "+orderSQL)
	}

	limit, hasLimit := qs.Limit()
	offset, hasOffset := qs.Offset()
	if hasOffset && offset <= 0 {
		hasOffset = false
	}
	if hasLimit {
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	} else if hasOffset {
		// these dialects reject a bare OFFSET
		switch g.Dialect() {
		case SQLite:
			parts = append(parts, "LIMIT -1")
		case MySQL:
			parts = append(parts, "LIMIT 18446744073709551615")
		}
	}
	if hasOffset {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}

	compiled := &CompiledSelect{
		SQL:     strings.Join(parts, " "),
		Params:  params,
		Columns: cols,
	}
	if qs.Mode() == query.ModeEntities {
		compiled.Plan = plan
	}
	return compiled, nil
}

func compileCount(g Generator, qs *query.Queryset) (*CompiledSelect, error) {
	inner, err := compileSelect(g, qs, selectOpts{dropOrdering: !isSliced(qs)})
	if err != nil {
		return nil, err
	}
	return &CompiledSelect{
		SQL: fmt.Sprintf("SELECT COUNT(*) AS %s FROM (%s) AS sub",
			g.QuoteIdentifier("count"), inner.SQL),
		Params:  inner.Params,
		Columns: []SelectColumn{{Alias: "count", Kind: schema.Int}},
	}, nil
}

func compileAggregate(g Generator, qs *query.Queryset, aggs []query.Aggregate) (*CompiledSelect, error) {
	if len(aggs) == 0 {
		return nil, ErrNoAggregates
	}
	seen := make(map[string]bool, len(aggs))
	for _, a := range aggs {
		if a.Alias == "" {
			return nil, fmt.Errorf("aggregate over %q needs an alias", a.Column)
		}
		if seen[a.Alias] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAggregate, a.Alias)
		}
		seen[a.Alias] = true
	}

	inner, err := compileSelect(g, qs, selectOpts{dropOrdering: !isSliced(qs)})
	if err != nil {
		return nil, err
	}

	sel := make([]string, 0, len(aggs))
	cols := make([]SelectColumn, 0, len(aggs))
	for _, a := range aggs {
		expr, kind, err := aggregateExpr(g, qs, a)
		if err != nil {
			return nil, err
		}
		sel = append(sel, fmt.Sprintf("%s AS %s", expr, g.QuoteIdentifier(a.Alias)))
		cols = append(cols, SelectColumn{Alias: a.Alias, Kind: kind})
	}

	return &CompiledSelect{
		SQL:     fmt.Sprintf("SELECT %s FROM (%s) AS sub", strings.Join(sel, ", "), inner.SQL),
		Params:  inner.Params,
		Columns: cols,
	}, nil
}

func aggregateExpr(g Generator, qs *query.Queryset, a query.Aggregate) (string, schema.Kind, error) {
	if a.Column == "" {
		if a.Func != query.AggCount {
			return "", 0, fmt.Errorf("aggregate %q requires a column", a.Alias)
		}
		return "COUNT(*)", schema.Int, nil
	}
	alias, kind, err := innerAliasFor(qs, a.Column)
	if err != nil {
		return "", 0, err
	}
	ref := "sub." + g.QuoteIdentifier(alias)
	switch a.Func {
	case query.AggCount:
		return fmt.Sprintf("COUNT(%s)", ref), schema.Int, nil
	case query.AggSum:
		return fmt.Sprintf("SUM(%s)", ref), kind, nil
	case query.AggAvg:
		if kind == schema.Int {
			kind = schema.Float
		}
		return fmt.Sprintf("AVG(%s)", ref), kind, nil
	case query.AggMin:
		return fmt.Sprintf("MIN(%s)", ref), kind, nil
	case query.AggMax:
		return fmt.Sprintf("MAX(%s)", ref), kind, nil
	default:
		return "", 0, fmt.Errorf("unsupported aggregate function %d", a.Func)
	}
}

// innerAliasFor resolves which alias of the compiled inner select carries a
// column, so the count and aggregate rewrites can reference it from the
// enclosing scope.
func innerAliasFor(qs *query.Queryset, column string) (string, schema.Kind, error) {
	entity := qs.Entity()
	if qs.Mode() == query.ModeEntities {
		if col, ok := entity.Column(column); ok {
			return fmt.Sprintf("t0_%s", column), col.Kind, nil
		}
		if ann, ok := annotationByAlias(qs, column); ok {
			return ann.Alias, ann.Kind, nil
		}
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	for _, f := range selectedFields(qs) {
		if f != column {
			continue
		}
		if col, ok := entity.Column(column); ok {
			return column, col.Kind, nil
		}
		if ann, ok := annotationByAlias(qs, column); ok {
			return column, ann.Kind, nil
		}
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
}

func isSliced(qs *query.Queryset) bool {
	if _, ok := qs.Limit(); ok {
		return true
	}
	_, ok := qs.Offset()
	return ok
}

// buildPlan resolves the select_related paths into a row plan tree and the
// JOIN clauses reaching each related table. Table indices are assigned in
// discovery order; repeated path prefixes share one join.
func buildPlan(g Generator, qs *query.Queryset) (*RowPlan, []string, error) {
	root := &RowPlan{Entity: qs.Entity(), TableIdx: 0}
	if qs.Mode() != query.ModeEntities {
		return root, nil, nil
	}

	next := 1
	var joins []string
	for _, path := range qs.Related() {
		node := root
		for _, seg := range strings.Split(path, "__") {
			rel, ok := node.Entity.Relation(seg)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %q in path %q", ErrUnknownRelation, seg, path)
			}
			var child *RowPlan
			for i := range node.Relations {
				if node.Relations[i].Relation.Name == seg {
					child = node.Relations[i].Plan
					break
				}
			}
			if child == nil {
				target, err := rel.TargetEntity()
				if err != nil {
					return nil, nil, err
				}
				child = &RowPlan{Entity: target, TableIdx: next}
				node.Relations = append(node.Relations, RelatedPlan{Relation: rel, Plan: child})
				joins = append(joins, joinClause(g, node, rel, child, target))
				next++
			}
			node = child
		}
	}
	return root, joins, nil
}

func joinClause(g Generator, parent *RowPlan, rel *schema.Relation, child *RowPlan, target *schema.Entity) string {
	// LEFT so rows with a null foreign key survive; their related entity
	// rehydrates as nil.
	return fmt.Sprintf("LEFT JOIN %s AS t%d ON t%d.%s = t%d.%s",
		g.QuoteIdentifier(target.Table), child.TableIdx,
		child.TableIdx, g.QuoteIdentifier(target.PrimaryKey().Name),
		parent.TableIdx, g.QuoteIdentifier(rel.Column))
}

// buildSelectList emits the aliased select expressions for the queryset's
// mode, the output column descriptors in emission order, the column
// references usable in GROUP BY, and the annotations that made it into the
// selection.
func buildSelectList(g Generator, qs *query.Queryset, plan *RowPlan) ([]string, []SelectColumn, []string, []query.Annotation, error) {
	entity := qs.Entity()
	var sel []string
	var cols []SelectColumn
	var groupRefs []string
	var selectedAnns []query.Annotation
	aliases := make(map[string]bool)

	addCol := func(expr, alias string, kind schema.Kind) error {
		if aliases[alias] {
			return fmt.Errorf("duplicate output column %q", alias)
		}
		aliases[alias] = true
		sel = append(sel, fmt.Sprintf("%s AS %s", expr, g.QuoteIdentifier(alias)))
		cols = append(cols, SelectColumn{Alias: alias, Kind: kind})
		return nil
	}

	switch qs.Mode() {
	case query.ModeEntities:
		var walk func(p *RowPlan) error
		walk = func(p *RowPlan) error {
			for _, c := range p.Entity.Columns {
				ref := columnRef(g, p.TableIdx, c.Name)
				if err := addCol(ref, p.Alias(c.Name), c.Kind); err != nil {
					return err
				}
				groupRefs = append(groupRefs, ref)
			}
			for _, rp := range p.Relations {
				if err := walk(rp.Plan); err != nil {
					return err
				}
			}
			return nil
		}
		if err := walk(plan); err != nil {
			return nil, nil, nil, nil, err
		}
		for _, ann := range qs.Annotations() {
			expr, err := expandExpr(g, entity, ann.Expr)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			if err := addCol("("+expr+")", ann.Alias, ann.Kind); err != nil {
				return nil, nil, nil, nil, err
			}
			selectedAnns = append(selectedAnns, ann)
		}

	case query.ModeValues, query.ModeValuesList, query.ModeFlatValuesList:
		fields := selectedFields(qs)
		if qs.Mode() == query.ModeFlatValuesList && len(fields) != 1 {
			return nil, nil, nil, nil, ErrFlatSingleField
		}
		for _, f := range fields {
			if col, ok := entity.Column(f); ok {
				ref := columnRef(g, 0, f)
				if err := addCol(ref, f, col.Kind); err != nil {
					return nil, nil, nil, nil, err
				}
				groupRefs = append(groupRefs, ref)
				continue
			}
			ann, ok := annotationByAlias(qs, f)
			if !ok {
				return nil, nil, nil, nil, fmt.Errorf("%w: %q", ErrUnknownColumn, f)
			}
			expr, err := expandExpr(g, entity, ann.Expr)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			if err := addCol("("+expr+")", ann.Alias, ann.Kind); err != nil {
				return nil, nil, nil, nil, err
			}
			selectedAnns = append(selectedAnns, ann)
		}

	default:
		return nil, nil, nil, nil, fmt.Errorf("unsupported result mode %d", qs.Mode())
	}

	return sel, cols, groupRefs, selectedAnns, nil
}

// selectedFields returns the fields a values-mode queryset selects: the
// requested ones, or every declared column plus every annotation when none
// were named.
func selectedFields(qs *query.Queryset) []string {
	if fields := qs.Fields(); len(fields) > 0 {
		return fields
	}
	entity := qs.Entity()
	fields := make([]string, 0, len(entity.Columns)+len(qs.Annotations()))
	for _, c := range entity.Columns {
		fields = append(fields, c.Name)
	}
	for _, ann := range qs.Annotations() {
		fields = append(fields, ann.Alias)
	}
	return fields
}

func annotationByAlias(qs *query.Queryset, alias string) (query.Annotation, bool) {
	for _, ann := range qs.Annotations() {
		if ann.Alias == alias {
			return ann, true
		}
	}
	return query.Annotation{}, false
}

func hasAggregateIn(anns []query.Annotation) bool {
	for _, a := range anns {
		if a.Aggregate {
			return true
		}
	}
	return false
}

func buildWhere(g Generator, entity *schema.Entity, conds []query.Condition, argIndex *int) (string, []interface{}, error) {
	var terms []string
	var params []interface{}

	for _, cond := range conds {
		if _, ok := entity.Column(cond.Column); !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, cond.Column)
		}
		ref := columnRef(g, 0, cond.Column)

		switch cond.Op {
		case query.OpEquals, query.OpNotEquals, query.OpGreaterThan,
			query.OpGreaterThanOrEqual, query.OpLessThan, query.OpLessThanOrEqual:
			terms = append(terms, fmt.Sprintf("%s %s %s", ref, comparison(cond.Op), g.Placeholder(*argIndex)))
			params = append(params, cond.Value)
			*argIndex++

		case query.OpIn:
			values, ok := cond.Value.([]interface{})
			if !ok {
				return "", nil, fmt.Errorf("%w: IN over %q requires []interface{}", ErrInvalidCondition, cond.Column)
			}
			if len(values) == 0 {
				return "", nil, ErrEmptyResultSet
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = g.Placeholder(*argIndex)
				params = append(params, v)
				*argIndex++
			}
			terms = append(terms, fmt.Sprintf("%s IN (%s)", ref, strings.Join(placeholders, ", ")))

		case query.OpIsNull:
			isNull, ok := cond.Value.(bool)
			if !ok {
				return "", nil, fmt.Errorf("%w: IS NULL over %q requires a bool", ErrInvalidCondition, cond.Column)
			}
			if isNull {
				terms = append(terms, ref+" IS NULL")
			} else {
				terms = append(terms, ref+" IS NOT NULL")
			}

		case query.OpContains:
			s, ok := cond.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: contains over %q requires a string", ErrInvalidCondition, cond.Column)
			}
			terms = append(terms, fmt.Sprintf("%s LIKE %s", ref, g.Placeholder(*argIndex)))
			params = append(params, "%"+s+"%")
			*argIndex++

		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %d", ErrInvalidCondition, cond.Op)
		}
	}

	return strings.Join(terms, " AND "), params, nil
}

func comparison(op query.Op) string {
	switch op {
	case query.OpEquals:
		return "="
	case query.OpNotEquals:
		return "!="
	case query.OpGreaterThan:
		return ">"
	case query.OpGreaterThanOrEqual:
		return ">="
	case query.OpLessThan:
		return "<"
	case query.OpLessThanOrEqual:
		return "<="
	}
	return "="
}

func buildOrdering(g Generator, entity *schema.Entity, ordering []query.Order, selectedAnns []query.Annotation) (string, error) {
	terms := make([]string, 0, len(ordering))
	for _, o := range ordering {
		var term string
		if _, ok := entity.Column(o.Column); ok {
			term = columnRef(g, 0, o.Column)
		} else if annSelected(selectedAnns, o.Column) {
			term = g.QuoteIdentifier(o.Column)
		} else {
			return "", fmt.Errorf("%w: %q in ordering", ErrUnknownColumn, o.Column)
		}
		if o.Desc {
			term += " DESC"
		} else {
			term += " ASC"
		}
		terms = append(terms, term)
	}
	return strings.Join(terms, ", "), nil
}

func annSelected(anns []query.Annotation, alias string) bool {
	for _, a := range anns {
		if a.Alias == alias {
			return true
		}
	}
	return false
}

func columnRef(g Generator, tableIdx int, column string) string {
	return fmt.Sprintf("t%d.%s", tableIdx, g.QuoteIdentifier(column))
}

// expandExpr substitutes {column} references in an annotation expression
// with qualified base-table columns.
func expandExpr(g Generator, entity *schema.Entity, expr string) (string, error) {
	var unknown string
	out := exprRefPattern.ReplaceAllStringFunc(expr, func(m string) string {
		name := m[1 : len(m)-1]
		if _, ok := entity.Column(name); !ok {
			if unknown == "" {
				unknown = name
			}
			return m
		}
		return columnRef(g, 0, name)
	})
	if unknown != "" {
		return "", fmt.Errorf("%w: %q in annotation expression", ErrUnknownColumn, unknown)
	}
	return out, nil
}
