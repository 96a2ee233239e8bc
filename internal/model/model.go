package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	AppName = "devicesync"
)

// Credentials are the API account used for the token exchange.
//
// nolint:govet // prefer to keep field ordering as is
type Credentials struct {
	Username string
	Password string
}

// AsLogFields never includes the password.
func (c *Credentials) AsLogFields() []any {
	return []any{
		"username", c.Username,
		"passwordSet", c.Password != "",
	}
}

// DeviceRecord is a single input row.
type DeviceRecord struct {
	// Serial is the unique key within a batch.
	Serial   string
	AssetTag string
	// EAValue is the value written to the configured extension attribute.
	EAValue string
}

func (r *DeviceRecord) AsLogFields() []any {
	return []any{
		"serial", r.Serial,
		"assetTag", r.AssetTag,
	}
}

// Records is the ordered input set, serial numbers are unique.
type Records []DeviceRecord

// Serials returns the serial numbers in batch order.
func (r Records) Serials() []string {
	serials := make([]string, 0, len(r))
	for i := range r {
		serials = append(serials, r[i].Serial)
	}

	return serials
}

// RemoteDevice is the Jamf object a serial number resolved to.
type RemoteDevice struct {
	Serial string
	ID     string
}

func (d *RemoteDevice) AsLogFields() []any {
	return []any{
		"serial", d.Serial,
		"deviceID", d.ID,
	}
}

// BatchResult is the outcome of a batch run.
type BatchResult struct {
	RunID    uuid.UUID
	Updated  int
	Errored  int
	Renewals int
	// Skipped lists the serials that had no remote object.
	Skipped  []string
	Duration time.Duration
	DryRun   bool
}

func (b *BatchResult) AsLogFields() []any {
	return []any{
		"runID", b.RunID.String(),
		"updated", b.Updated,
		"errored", b.Errored,
		"tokenRenewals", b.Renewals,
		"skipped", b.Skipped,
		"duration", b.Duration.Round(time.Second).String(),
		"dryRun", b.DryRun,
	}
}

type Args struct {
	LogLevel        string
	ConfigFile      string
	RecordsFile     string
	EnableProfiling bool
	DryRun          bool
}
