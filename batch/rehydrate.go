package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/singlefetch/singlefetch/query"
	"github.com/singlefetch/singlefetch/query/sqlgen"
	"github.com/singlefetch/singlefetch/schema"
)

// dateTimeFormats is the parse ladder for datetime strings. Each dialect's
// JSON rendering lands on one of these.
var dateTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

const dateFormat = "2006-01-02"

// rehydrateFragment turns one fragment's slice of the batch response into
// the typed result its intent asked for.
func rehydrateFragment(frag *fragment, raw json.RawMessage) (interface{}, error) {
	switch frag.intent.kind {
	case kindCount:
		return coerce(raw, schema.Int)
	case kindAggregate:
		return rehydrateAggregates(frag, raw)
	case kindRows:
		return rehydrateRows(frag, raw)
	case kindFirstOrNone:
		if isNull(raw) {
			return nil, nil
		}
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, err
		}
		return buildRow(frag, obj)
	default:
		return nil, fmt.Errorf("unknown intent kind %d", frag.intent.kind)
	}
}

func rehydrateAggregates(frag *fragment, raw json.RawMessage) (interface{}, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(frag.compiled.Columns))
	for _, col := range frag.compiled.Columns {
		payload, ok := obj[col.Alias]
		if !ok {
			return nil, fmt.Errorf("%w: aggregate %q missing from response", ErrUnsupportedShape, col.Alias)
		}
		v, err := coerce(payload, col.Kind)
		if err != nil {
			return nil, fmt.Errorf("aggregate %q: %w", col.Alias, err)
		}
		out[col.Alias] = v
	}
	return out, nil
}

func rehydrateRows(frag *fragment, raw json.RawMessage) (interface{}, error) {
	items, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}

	switch frag.intent.qs.Mode() {
	case query.ModeEntities:
		known, err := knownIndex(frag.intent.qs)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			obj, err := decodeObject(item)
			if err != nil {
				return nil, err
			}
			inst, err := buildEntityRow(frag, obj, known)
			if err != nil {
				return nil, err
			}
			out = append(out, inst)
		}
		return out, nil

	case query.ModeValues:
		out := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			obj, err := decodeObject(item)
			if err != nil {
				return nil, err
			}
			m, err := buildValuesMap(frag, obj)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil

	case query.ModeValuesList:
		out := make([][]interface{}, 0, len(items))
		for _, item := range items {
			obj, err := decodeObject(item)
			if err != nil {
				return nil, err
			}
			vals, err := buildValuesList(frag, obj)
			if err != nil {
				return nil, err
			}
			out = append(out, vals)
		}
		return out, nil

	case query.ModeFlatValuesList:
		col := frag.compiled.Columns[0]
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			obj, err := decodeObject(item)
			if err != nil {
				return nil, err
			}
			v, err := coerce(obj[col.Alias], col.Kind)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", col.Alias, err)
			}
			out = append(out, v)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: result mode %d", ErrUnsupportedShape, frag.intent.qs.Mode())
	}
}

// buildRow rehydrates a single row object per the queryset's mode. Used by
// first-or-none, where the response is one object rather than an array.
func buildRow(frag *fragment, obj map[string]json.RawMessage) (interface{}, error) {
	switch frag.intent.qs.Mode() {
	case query.ModeEntities:
		known, err := knownIndex(frag.intent.qs)
		if err != nil {
			return nil, err
		}
		return buildEntityRow(frag, obj, known)
	case query.ModeValues:
		return buildValuesMap(frag, obj)
	case query.ModeValuesList:
		return buildValuesList(frag, obj)
	case query.ModeFlatValuesList:
		col := frag.compiled.Columns[0]
		v, err := coerce(obj[col.Alias], col.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Alias, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: result mode %d", ErrUnsupportedShape, frag.intent.qs.Mode())
	}
}

// buildEntityRow rebuilds the root entity of one row, attaches annotation
// values to matching struct fields, and resolves known-related candidates
// against the row's foreign keys.
func buildEntityRow(frag *fragment, obj map[string]json.RawMessage, known knownRelIndex) (interface{}, error) {
	inst, err := buildEntity(frag.compiled.Plan, obj)
	if err != nil {
		return nil, err
	}
	entity := frag.compiled.Plan.Entity

	for _, ann := range frag.intent.qs.Annotations() {
		v, err := coerce(obj[ann.Alias], ann.Kind)
		if err != nil {
			return nil, fmt.Errorf("annotation %q: %w", ann.Alias, err)
		}
		// Values land on a struct field matching the alias when one
		// exists; otherwise the annotation was select-only.
		if _, err := entity.SetByTag(inst, ann.Alias, v); err != nil {
			return nil, fmt.Errorf("annotation %q: %w", ann.Alias, err)
		}
	}

	for _, kr := range known {
		// Candidates fill empty slots only, never overwriting an
		// instance a select-related join loaded.
		cur, err := entity.RelationValue(inst, kr.rel)
		if err != nil {
			return nil, err
		}
		if cur != nil {
			continue
		}
		fk, err := entity.ColumnValue(inst, kr.rel.Column)
		if err != nil {
			return nil, err
		}
		if fk == nil {
			continue
		}
		// A key with no candidate stays nil; callers batching unions
		// supply candidates per part.
		if cand, ok := kr.byKey[canonicalKey(fk)]; ok {
			if err := entity.SetRelation(inst, kr.rel, cand); err != nil {
				return nil, err
			}
		}
	}
	return inst, nil
}

// buildEntity rebuilds one plan node's entity from a row object, recursing
// into joined relations. A related entity whose primary key came back null
// was not matched by its join and stays nil.
func buildEntity(plan *sqlgen.RowPlan, obj map[string]json.RawMessage) (interface{}, error) {
	entity := plan.Entity
	inst := entity.New()
	for i := range entity.Columns {
		col := &entity.Columns[i]
		v, err := coerce(obj[plan.Alias(col.Name)], col.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		if err := entity.SetColumn(inst, col.Name, v); err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrCoercion, col.Name, err)
		}
	}
	for _, rp := range plan.Relations {
		pkAlias := rp.Plan.Alias(rp.Plan.Entity.PrimaryKey().Name)
		if isNull(obj[pkAlias]) {
			continue
		}
		child, err := buildEntity(rp.Plan, obj)
		if err != nil {
			return nil, err
		}
		if err := entity.SetRelation(inst, rp.Relation, child); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func buildValuesMap(frag *fragment, obj map[string]json.RawMessage) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(frag.compiled.Columns))
	for _, col := range frag.compiled.Columns {
		v, err := coerce(obj[col.Alias], col.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Alias, err)
		}
		out[col.Alias] = v
	}
	return out, nil
}

func buildValuesList(frag *fragment, obj map[string]json.RawMessage) ([]interface{}, error) {
	out := make([]interface{}, 0, len(frag.compiled.Columns))
	for _, col := range frag.compiled.Columns {
		v, err := coerce(obj[col.Alias], col.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Alias, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// knownRel is one relation's candidate instances indexed by canonical
// primary-key string.
type knownRel struct {
	rel   *schema.Relation
	byKey map[string]interface{}
}

type knownRelIndex []knownRel

func knownIndex(qs *query.Queryset) (knownRelIndex, error) {
	krs := qs.KnownRelations()
	if len(krs) == 0 {
		return nil, nil
	}
	idx := make(knownRelIndex, 0, len(krs))
	for _, kr := range krs {
		rel, ok := qs.Entity().Relation(kr.Relation)
		if !ok {
			return nil, fmt.Errorf("unknown relation %q in known candidates", kr.Relation)
		}
		target, err := rel.TargetEntity()
		if err != nil {
			return nil, err
		}
		pk := target.PrimaryKey()
		byKey := make(map[string]interface{}, len(kr.Candidates))
		for _, cand := range kr.Candidates {
			v, err := target.ColumnValue(cand, pk.Name)
			if err != nil {
				return nil, fmt.Errorf("known candidate for %q: %v", kr.Relation, err)
			}
			if v == nil {
				continue
			}
			byKey[canonicalKey(v)] = cand
		}
		idx = append(idx, knownRel{rel: rel, byKey: byKey})
	}
	return idx, nil
}

// canonicalKey normalizes a primary-key value so row foreign keys and
// candidate keys compare as strings regardless of integer width.
func canonicalKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case uuid.UUID:
		return t.String()
	case json.Number:
		return t.String()
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// emptyResult is the substitution for an intent whose queryset matched no
// rows by construction. It never touches the database.
func emptyResult(in Intent) interface{} {
	switch in.kind {
	case kindRows:
		switch in.qs.Mode() {
		case query.ModeValues:
			return []map[string]interface{}{}
		case query.ModeValuesList:
			return [][]interface{}{}
		default:
			return []interface{}{}
		}
	case kindCount:
		return int64(0)
	case kindAggregate:
		out := make(map[string]interface{}, len(in.aggs))
		for _, a := range in.aggs {
			if a.Func == query.AggCount {
				out[a.Alias] = int64(0)
			} else {
				out[a.Alias] = nil
			}
		}
		return out
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON object: %v", ErrUnsupportedShape, err)
	}
	return obj, nil
}

func decodeArray(raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array: %v", ErrUnsupportedShape, err)
	}
	return items, nil
}

// decodeValue decodes one JSON value preserving numeric text, so decimals
// coerce from their exact digits rather than a float approximation.
func decodeValue(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedShape, err)
	}
	return v, nil
}

// coerce converts one JSON value to its column's declared kind. Nulls pass
// through as nil for every kind.
func coerce(raw json.RawMessage, kind schema.Kind) (interface{}, error) {
	if isNull(raw) {
		return nil, nil
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case schema.String:
		if s, ok := v.(string); ok {
			return s, nil
		}

	case schema.Int:
		if n, ok := v.(json.Number); ok {
			i, err := strconv.ParseInt(n.String(), 10, 64)
			if err == nil {
				return i, nil
			}
		}

	case schema.Float:
		if n, ok := v.(json.Number); ok {
			f, err := n.Float64()
			if err == nil {
				return f, nil
			}
		}

	case schema.Bool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case json.Number:
			// Dialects without a boolean type round-trip 0/1.
			switch t.String() {
			case "0":
				return false, nil
			case "1":
				return true, nil
			}
		}

	case schema.Decimal:
		switch t := v.(type) {
		case json.Number:
			d, err := decimal.NewFromString(t.String())
			if err == nil {
				return d, nil
			}
		case string:
			d, err := decimal.NewFromString(t)
			if err == nil {
				return d, nil
			}
		}

	case schema.UUID:
		if s, ok := v.(string); ok {
			u, err := uuid.Parse(s)
			if err == nil {
				return u, nil
			}
		}

	case schema.Date:
		if s, ok := v.(string); ok {
			ts, err := time.Parse(dateFormat, s)
			if err == nil {
				return ts, nil
			}
		}

	case schema.DateTime:
		if s, ok := v.(string); ok {
			for _, layout := range dateTimeFormats {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts, nil
				}
			}
		}

	case schema.JSON:
		// Re-serialize for a canonical rendering; json.Number keeps the
		// database's exact digits through the round trip.
		out, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCoercion, err)
		}
		return json.RawMessage(out), nil
	}

	return nil, fmt.Errorf("%w: cannot convert %s to %s", ErrCoercion, raw, kind)
}
