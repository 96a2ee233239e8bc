package jamf

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		kind   EndpointKind
		want   Outcome
	}{
		{http.StatusOK, EndpointLookup, OK},
		{http.StatusCreated, EndpointUpdate, OK},
		{http.StatusOK, EndpointAuth, OK},
		{http.StatusNotFound, EndpointLookup, NotFoundSkip},
		{http.StatusNotFound, EndpointUpdate, Fatal},
		{http.StatusNotFound, EndpointAuth, Fatal},
		{http.StatusNoContent, EndpointUpdate, Fatal},
		{http.StatusUnauthorized, EndpointAuth, Fatal},
		{http.StatusUnauthorized, EndpointLookup, Fatal},
		{http.StatusBadRequest, EndpointUpdate, Fatal},
		{http.StatusInternalServerError, EndpointLookup, Fatal},
		{http.StatusServiceUnavailable, EndpointConfirm, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.kind))
		})
	}
}
