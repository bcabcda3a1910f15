package resource

// Envelope is the uniform result of every resource call.
//
// Error is set if and only if the call failed. When the request itself
// failed, Error is the verb's fallback message and Data the fallback value: an
// empty slice for List and nil for single-entity calls. When the remote side
// answered 2xx with an envelope carrying its own error, that envelope is
// returned as sent. Failure carries the typed reason (usually a
// *goerrors.Error with the HTTP status) and is never serialized.
type Envelope[T any] struct {
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Failure error  `json:"-"`
}

// Failed reports whether the call failed.
func (e Envelope[T]) Failed() bool {
	return e.Error != ""
}

// Unwrap returns the data, or the failure reason.
func (e Envelope[T]) Unwrap() (T, error) {
	if e.Failed() {
		return e.Data, e.Failure
	}
	return e.Data, nil
}
