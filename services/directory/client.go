// Package directorysvc talks to the church people directory over HTTP.
// Prospects are provisioned as Person records when they first attend, and
// follow-up assignees are checked against the same directory.
package directorysvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/followup"
	"github.com/tmkamba/kanisa/core/prospect"
)

type Client struct {
	baseURL string
	client  *http.Client
	logger  core.Logger
}

var (
	_ prospect.DirectoryService = (*Client)(nil)
	_ followup.PersonChecker    = (*Client)(nil)
)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return &Client{
		baseURL: conf.Directory.BaseURL,
		client:  &http.Client{Timeout: conf.Directory.Timeout},
		logger:  logger,
	}
}

type person struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// EnsurePerson registers a prospect in the directory, returning the existing
// record's ID when one already matches the contact info.
func (c *Client) EnsurePerson(ctx context.Context, name, contactInfo string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"name":         name,
		"contact_info": contactInfo,
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding person")
	}

	var p person
	if err = c.do(ctx, http.MethodPost, "/v1/people:ensure", bytes.NewReader(body), &p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (c *Client) IsActivePerson(ctx context.Context, personID string) (bool, error) {
	p, err := c.getPerson(ctx, personID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.IsActive, nil
}

func (c *Client) PersonEmail(ctx context.Context, personID string) (string, error) {
	p, err := c.getPerson(ctx, personID)
	if err != nil {
		return "", err
	}
	return p.Email, nil
}

var errNotFound = errors.New("person not found")

func (c *Client) getPerson(ctx context.Context, personID string) (person, error) {
	var p person
	err := c.do(ctx, http.MethodGet, "/v1/people/"+personID, nil, &p)
	return p, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "creating directory request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling directory")
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return errNotFound
	case res.StatusCode >= http.StatusBadRequest:
		resBody, _ := ioutil.ReadAll(res.Body)
		return errors.Errorf("directory: %s %s - status: %d - Body: %s", method, path, res.StatusCode, resBody)
	}

	if out != nil {
		if err = json.NewDecoder(res.Body).Decode(out); err != nil {
			return errors.Wrap(err, fmt.Sprintf("decoding directory response: %s %s", method, path))
		}
	}
	return nil
}
