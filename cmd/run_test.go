package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metal-toolbox/devicesync/internal/jamf"
)

const testRecords = "SN001, AT-1, val-a\nSN404, AT-4, val-d\n"

// newJamfServer serves the token, lookup and patch endpoints, SN001 resolves
// to device 100 and every other serial is not found.
func newJamfServer(t *testing.T, patchStatus int) (*httptest.Server, *[]string) {
	t.Helper()

	var patches []string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok-1","expires":"2024-06-01T09:30:00Z"}`))
	})

	mux.HandleFunc("/JSSResource/mobiledevices/serialnumber/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/SN001") {
			_, _ = w.Write([]byte(`<mobile_device><general><id>100</id></general></mobile_device>`))
			return
		}

		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("/api/v2/mobile-devices/", func(w http.ResponseWriter, r *http.Request) {
		patches = append(patches, strings.TrimPrefix(r.URL.Path, "/api/v2/mobile-devices/"))
		w.WriteHeader(patchStatus)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &patches
}

func writeRunFiles(t *testing.T, jamfURL string) (configFile, recordsFile string) {
	t.Helper()

	dir := t.TempDir()

	configFile = filepath.Join(dir, "config.yaml")
	recordsFile = filepath.Join(dir, "serial_numbers.csv")

	config := fmt.Sprintf(
		"jamf:\n  url: %s\n  username: api-user\n  password: api-pass\n  ea_name: Cart\n"+
			"  request_timeout: 5s\n  retry_max: 0\n",
		jamfURL,
	)

	require.NoError(t, os.WriteFile(configFile, []byte(config), 0o600))
	require.NoError(t, os.WriteFile(recordsFile, []byte(testRecords), 0o600))

	return configFile, recordsFile
}

func execute(argv ...string) error {
	rootCmd.SetArgs(argv)
	defer rootCmd.SetArgs(nil)

	return rootCmd.ExecuteContext(context.Background())
}

func TestSyncWithSkipsSucceeds(t *testing.T) {
	srv, patches := newJamfServer(t, http.StatusOK)
	configFile, recordsFile := writeRunFiles(t, srv.URL)

	err := execute("--config", configFile, "--records", recordsFile)
	require.NoError(t, err)

	assert.Equal(t, []string{"100"}, *patches)
}

func TestSyncFatalResponseFails(t *testing.T) {
	srv, patches := newJamfServer(t, http.StatusInternalServerError)
	configFile, recordsFile := writeRunFiles(t, srv.URL)

	err := execute("--config", configFile, "--records", recordsFile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jamf.ErrFatalResponse), err.Error())

	assert.Equal(t, []string{"100"}, *patches)
}

func TestSyncAuthFailureFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	configFile, recordsFile := writeRunFiles(t, srv.URL)

	err := execute("--config", configFile, "--records", recordsFile)
	assert.True(t, errors.Is(err, jamf.ErrAuth))
}

func TestValidate(t *testing.T) {
	configFile, recordsFile := writeRunFiles(t, "https://jamf.local")

	assert.NoError(t, execute("validate", "--config", configFile, "--records", recordsFile))
	assert.Error(t, execute("validate", "--config", configFile, "--records", filepath.Join(t.TempDir(), "missing.csv")))
}
