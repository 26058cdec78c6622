package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestJSONWritesEnvelope(t *testing.T) {
	c, rec := newContext()

	JSON(c, http.StatusOK, map[string]int{"total": 3}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 3},
		map[string]interface{}{"cache_hit": true})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["data"]["total"])
	assert.Equal(t, true, body["meta"]["cache_hit"])
	assert.NotContains(t, body, "error")
}

func TestErrorMapsStatusAndRecordsServerErrors(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.Clone(appErrors.ErrConflict, "curriculum code already exists"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, c.Errors)

	c, rec = newContext()
	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, c.Errors, 1)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestAttachmentSetsDisposition(t *testing.T) {
	c, rec := newContext()

	Attachment(c, "progress.csv", "text/csv", []byte("a,b\n"))

	assert.Equal(t, `attachment; filename="progress.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}
