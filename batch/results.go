package batch

import "fmt"

// EntitiesAs narrows a Rows result to a typed entity slice.
func EntitiesAs[T any](v interface{}) ([]*T, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected entity rows, got %T", v)
	}
	out := make([]*T, 0, len(items))
	for _, item := range items {
		e, ok := item.(*T)
		if !ok {
			return nil, fmt.Errorf("expected %T rows, got %T", (*T)(nil), item)
		}
		out = append(out, e)
	}
	return out, nil
}

// FirstAs narrows a FirstOrNone result to a typed entity. A nil result
// stays nil with no error.
func FirstAs[T any](v interface{}) (*T, error) {
	if v == nil {
		return nil, nil
	}
	e, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("expected %T, got %T", (*T)(nil), v)
	}
	return e, nil
}
