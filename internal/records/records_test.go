package records

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metal-toolbox/devicesync/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    model.Records
		wantErr bool
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "comma space separated",
			input: "SN001, AT-1, val-a\nSN002, AT-2, val-b\n",
			want: model.Records{
				{Serial: "SN001", AssetTag: "AT-1", EAValue: "val-a"},
				{Serial: "SN002", AssetTag: "AT-2", EAValue: "val-b"},
			},
		},
		{
			name:  "blank lines and comments",
			input: "# serial, tag, value\n\nSN001,AT-1,val-a\n\n",
			want: model.Records{
				{Serial: "SN001", AssetTag: "AT-1", EAValue: "val-a"},
			},
		},
		{
			name:  "quoted value with comma",
			input: `SN001, AT-1, "cart 1, shelf 2"` + "\n",
			want: model.Records{
				{Serial: "SN001", AssetTag: "AT-1", EAValue: "cart 1, shelf 2"},
			},
		},
		{
			name:  "empty asset tag and value",
			input: "SN001,,\n",
			want: model.Records{
				{Serial: "SN001"},
			},
		},
		{
			name:  "duplicate serial keeps first position and last values",
			input: "SN001, AT-1, val-a\nSN002, AT-2, val-b\nSN001, AT-9, val-z\n",
			want: model.Records{
				{Serial: "SN001", AssetTag: "AT-9", EAValue: "val-z"},
				{Serial: "SN002", AssetTag: "AT-2", EAValue: "val-b"},
			},
		},
		{
			name:    "too few fields",
			input:   "SN001, AT-1\n",
			wantErr: true,
		},
		{
			name:    "too many fields",
			input:   "SN001, AT-1, val-a, extra\n",
			wantErr: true,
		},
		{
			name:    "empty serial",
			input:   " , AT-1, val-a\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.True(t, errors.Is(err, model.ErrRecords))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial_numbers.csv")
	require.NoError(t, os.WriteFile(path, []byte("SN001, AT-1, val-a\n"), 0o600))

	got, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"SN001"}, got.Serials())

	_, err = NewLoader(filepath.Join(t.TempDir(), "missing.csv")).Load()
	assert.True(t, errors.Is(err, model.ErrRecords))
}
