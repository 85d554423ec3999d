package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
)

// client drives the service through its public route surface. Every request
// carries the bearer token in the JSON body, matching the wire protocol.
type client struct {
	api    http.Handler
	token  string
	userId int
}

func (c *client) do(endpoint string, body map[string]interface{}) (*http.Response, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	if _, ok := body["token"]; !ok && c.token != "" {
		body["token"] = c.token
	}

	encoded := new(bytes.Buffer)
	if err := json.NewEncoder(encoded).Encode(body); err != nil {
		return nil, fmt.Errorf("error encoding body for endpoint %v: %w", endpoint, err)
	}

	req := httptest.NewRequest("POST", endpoint, encoded)
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	return w.Result(), nil
}

// postJson posts and decodes a JSON response into result (nil to discard).
func (c *client) postJson(endpoint string, body map[string]interface{}, result interface{}) error {
	res, err := c.do(endpoint, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		content, _ := io.ReadAll(res.Body)
		return fmt.Errorf("request to endpoint %v returned status %d, content %q", endpoint, res.StatusCode, content)
	}

	if result != nil {
		if err := json.NewDecoder(res.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing response from endpoint %v: %w", endpoint, err)
		}
	}
	return nil
}

// postRaw posts and returns the raw response body, for binary and legacy
// text-body endpoints.
func (c *client) postRaw(endpoint string, body map[string]interface{}) ([]byte, error) {
	res, err := c.do(endpoint, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	content, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request to endpoint %v returned status %d, content %q", endpoint, res.StatusCode, content)
	}
	return content, nil
}

func (c *client) login(username, password string) error {
	var res struct {
		UserId int    `json:"user_id"`
		Token  string `json:"token"`
	}
	err := c.postJson("/authenticate", map[string]interface{}{
		"username": username, "password": password,
	}, &res)
	if err != nil {
		return err
	}
	if res.UserId < 0 {
		return fmt.Errorf("authentication failed for user %v", username)
	}

	c.token = res.Token
	c.userId = res.UserId
	return nil
}

func (c *client) createProject(name string, public int) (uint, error) {
	var res struct {
		Success bool `json:"success"`
		Id      uint `json:"id"`
	}
	err := c.postJson("/projects/add", map[string]interface{}{
		"name": name, "public": public,
	}, &res)
	if err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("project creation failed for %v", name)
	}
	return res.Id, nil
}

func (c *client) createCollection(name string, parent uint, public int) (uint, error) {
	var res struct {
		Success bool `json:"success"`
		Id      uint `json:"id"`
	}
	err := c.postJson("/collections/add", map[string]interface{}{
		"name": name, "parent_id": parent, "public": public,
	}, &res)
	if err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("collection creation failed for %v", name)
	}
	return res.Id, nil
}
