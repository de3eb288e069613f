package batch

import "errors"

var (
	// ErrUnsupportedParamType rejects a query parameter whose type has no
	// safe literal encoding. Only the allow-listed types are inlined;
	// anything else aborts the whole batch before any SQL reaches the
	// database.
	ErrUnsupportedParamType = errors.New("parameter type cannot be encoded as a SQL literal")

	// ErrBatchFailed wraps the driver error from executing the combined
	// statement. One statement serves every queryset in the batch, so a
	// failure carries no per-queryset attribution.
	ErrBatchFailed = errors.New("batch execution failed")

	// ErrUnsupportedShape marks a database response whose JSON structure
	// does not match what the fragment's intent expects, e.g. a scalar
	// where a row array should be.
	ErrUnsupportedShape = errors.New("unsupported result shape")

	// ErrCoercion marks a JSON value that failed to convert to its
	// column's declared kind.
	ErrCoercion = errors.New("type coercion failed")
)
