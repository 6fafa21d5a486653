package writer

import (
	"errors"
	"net/http"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Transient reports whether every underlying insert failure is worth retrying.
func Transient(err error) bool {
	causes := leaves(err)
	if len(causes) == 0 {
		return false
	}
	for _, cause := range causes {
		if !transientLeaf(cause) {
			return false
		}
	}
	return true
}

// leaves flattens the nested error lists returned by Inserter.Put.
func leaves(err error) []error {
	if err == nil {
		return nil
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return flatten(multi)
	}
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		var out []error
		for _, row := range rows {
			out = append(out, flatten(row.Errors)...)
		}
		return out
	}
	return []error{err}
}

func flatten(errs []error) []error {
	var out []error
	for _, e := range errs {
		out = append(out, leaves(e)...)
	}
	return out
}

func transientLeaf(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
