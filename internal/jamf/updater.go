package jamf

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/metal-toolbox/devicesync/internal/model"
)

const extensionAttributeTypeString = "STRING"

type extensionAttribute struct {
	Value []string `json:"value"`
	Name  string   `json:"name"`
	Type  string   `json:"type"`
}

type devicePatch struct {
	UpdatedExtensionAttributes []extensionAttribute `json:"updatedExtensionAttributes"`
	AssetTag                   string               `json:"assetTag"`
}

func newDevicePatch(assetTag, eaName, eaValue string) *devicePatch {
	return &devicePatch{
		UpdatedExtensionAttributes: []extensionAttribute{
			{
				Value: []string{eaValue},
				Name:  eaName,
				Type:  extensionAttributeTypeString,
			},
		},
		AssetTag: assetTag,
	}
}

// Update sets the asset tag and the named string extension attribute on the device.
// Every non OK response is fatal, including a 404.
func (c *Client) Update(ctx context.Context, session *Session, id, assetTag, eaName, eaValue string) error {
	if id == "" {
		return errors.Wrap(ErrMalformedResponse, "no device id to update")
	}

	req := &request{
		kind:    EndpointUpdate,
		method:  http.MethodPatch,
		path:    devicePathPrefix + url.PathEscape(id),
		accept:  mimeJSON,
		body:    newDevicePatch(assetTag, eaName, eaValue),
		session: session,
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}

	return classify(req.method, req.kind, resp)
}

// UpdateRecord applies a device record to its resolved device.
func (c *Client) UpdateRecord(ctx context.Context, session *Session, device *model.RemoteDevice, record *model.DeviceRecord) error {
	return c.Update(ctx, session, device.ID, record.AssetTag, c.opts.EAName, record.EAValue)
}

// Confirm reads the device back after an update. The result is only logged.
func (c *Client) Confirm(ctx context.Context, session *Session, device *model.RemoteDevice) {
	req := &request{
		kind:    EndpointConfirm,
		method:  http.MethodGet,
		path:    devicePathPrefix + url.PathEscape(device.ID),
		accept:  mimeJSON,
		session: session,
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		slog.Debug("device confirmation read failed", append(device.AsLogFields(), "error", err)...)
		return
	}

	slog.Debug("device confirmation read", append(device.AsLogFields(), "status", resp.statusCode)...)
}
