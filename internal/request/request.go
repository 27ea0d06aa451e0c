/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response body is kept on a StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned by Call when the server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsConflict reports whether err carries an HTTP 409 response.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// ToJsonReq converts a Go object to a JSON-encoded HTTP request payload.
//
// Parameters:
// - payload interface{}: The data structure to be serialized into JSON.
//
// Returns:
// - *bytes.Buffer: The JSON-encoded payload wrapped in a bytes buffer, ready to be sent in a request.
// - error: An error if the JSON marshalling process fails.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// Call sends req with the given client and decodes a JSON response body into response.
// A nil client behaves like a zero http.Client. A non-2xx status yields a *StatusError
// and leaves response untouched. Empty bodies, such as those of HEAD requests, are not decoded.
//
// Parameters:
// - client *http.Client: The client used to send the request.
// - req *http.Request: The prepared HTTP request to send.
// - response interface{}: The target structure to hold the decoded JSON response, or nil to discard it.
//
// Returns:
// - *http.Response: The raw HTTP response object. Its body has already been consumed.
// - error: An error if sending fails, the status is not 2xx, or the JSON decoding fails.
func Call(client *http.Client, req *http.Request, response interface{}) (*http.Response, error) {
	if client == nil {
		client = &http.Client{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}
	if response == nil || len(bytes.TrimSpace(body)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(body, response); err != nil {
		return resp, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}

// TokenAuth builds the value of an Authorization header for key/secret token authentication.
//
// Returns:
// - string: A string in the format "token <key>:<secret>".
func TokenAuth(key, secret string) string {
	return "token " + key + ":" + secret
}
