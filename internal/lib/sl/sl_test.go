package sl_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
)

func TestErr_ReturnsCorrectAttr(t *testing.T) {
	err := errors.New("something went wrong")
	attr := sl.Err(err)

	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, slog.StringValue("something went wrong"), attr.Value)
}

func TestErr_NilError(t *testing.T) {
	assert.NotPanics(t, func() {
		attr := sl.Err(nil)
		assert.Equal(t, "", attr.Value.String())
	})
}

func TestKind(t *testing.T) {
	wrapped := fmt.Errorf("op: %w", apperr.Conflict(apperr.ReasonInsufficientFunds, "user"))

	attr := sl.Kind(wrapped)
	assert.Equal(t, "kind", attr.Key)
	assert.Equal(t, slog.KindGroup, attr.Value.Kind())
	group := attr.Value.Group()
	assert.Equal(t, "conflict", group[0].Value.String())
	assert.Equal(t, "insufficientFunds", group[1].Value.String())

	plain := sl.Kind(errors.New("boom"))
	assert.Equal(t, "unknown", plain.Value.String())
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer

	sl.SetupLogger("prod", &buf).Debug("hidden")
	assert.Empty(t, buf.String())

	sl.SetupLogger("dev", &buf).Debug("shown", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	sl.SetupLogger("local", &buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
