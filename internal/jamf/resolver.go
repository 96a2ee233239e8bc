package jamf

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"github.com/metal-toolbox/devicesync/internal/model"
)

// mobileDevice is the part of a classic API mobile device record we read.
type mobileDevice struct {
	General struct {
		ID           string `xml:"id"`
		SerialNumber string `xml:"serial_number"`
	} `xml:"general"`
}

// Resolve looks up the Jamf id of the mobile device with the serial number.
// ErrLookupNotFound is returned when Jamf has no such device.
func (c *Client) Resolve(ctx context.Context, session *Session, serial string) (*model.RemoteDevice, error) {
	req := &request{
		kind:    EndpointLookup,
		method:  http.MethodGet,
		path:    lookupPathPrefix + url.PathEscape(serial),
		accept:  mimeXML,
		session: session,
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := classify(req.method, req.kind, resp); err != nil {
		return nil, err
	}

	id, err := parseDeviceID(resp.body)
	if err != nil {
		return nil, resp.asError(req.method, req.kind, err)
	}

	return &model.RemoteDevice{Serial: serial, ID: id}, nil
}

func parseDeviceID(body []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = charset.NewReaderLabel

	var device mobileDevice
	if err := decoder.Decode(&device); err != nil {
		return "", errors.Wrap(ErrMalformedResponse, "device record: "+err.Error())
	}

	id := strings.TrimSpace(device.General.ID)
	if id == "" {
		return "", errors.Wrap(ErrMalformedResponse, "device record has no general/id")
	}

	return id, nil
}
