// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// LogInfo is a fetched log, remembering its Etag so that later calls can
// wait for changes.
type LogInfo struct {
	name    string
	etag    string
	Records []LogRecord
}

// ProcessList is a fetched list of processes, with its Etag.
type ProcessList struct {
	etag      string
	Processes []ProcessInfo
}

type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/processes"
	}
	return c.base + "/processes/" + url.PathEscape(name)
}

func (c *Client) logURL(name string) string {
	if name == "" {
		return c.base + "/log"
	}
	return c.url(name) + "/log"
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

// readError turns an error response into an *Error, using the server's
// message when there is one.
func readError(res *http.Response) error {
	e := &Error{Code: res.StatusCode, Message: res.Status}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if len(b) != 0 {
		msg := &Error{}
		if json.Unmarshal(b, msg) == nil && msg.Message != "" {
			e.Message = msg.Message
		} else if s := strings.TrimSpace(string(b)); s != "" {
			e.Message = s
		}
	}
	return e
}

func (c *Client) post(ctx context.Context, url string, v interface{}) error {
	return c.send(ctx, "POST", url, v)
}

// send issues a request with an optional JSON body, expecting 200 OK.
func (c *Client) send(ctx context.Context, method string, url string, v interface{}) error {
	var body io.Reader = strings.NewReader("")
	if v != nil {
		b, e := json.Marshal(v)
		if e != nil {
			return e
		}
		body = bytes.NewReader(b)
	}
	req, e := http.NewRequestWithContext(ctx, method, url, body)
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", mimeJson)
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readError(res)
	}
	return nil
}

// Processes returns every supervised process.
func (c *Client) Processes(ctx context.Context) ([]ProcessInfo, error) {
	pl, e := c.pollProcesses(ctx, 0, nil)
	if e != nil {
		return nil, e
	}
	return pl.Processes, nil
}

// WatchProcesses waits up to secs seconds for any process to change
// state relative to last, which may be nil to fetch immediately.
func (c *Client) WatchProcesses(ctx context.Context, secs int, last *ProcessList) (*ProcessList, error) {
	return c.pollProcesses(ctx, secs, last)
}

func (c *Client) pollProcesses(ctx context.Context, secs int, last *ProcessList) (*ProcessList, error) {
	v := &ProcessList{}
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}
	etag, e := c.poll(ctx, c.url(""), otag, secs, &v.Processes)
	if e != nil {
		return nil, e
	}
	if etag == "" && last != nil {
		return last, nil
	}
	v.etag = etag
	return v, nil
}

// Process returns one process.
func (c *Client) Process(ctx context.Context, name string) (*ProcessInfo, error) {
	v := &ProcessInfo{}
	if _, e := c.poll(ctx, c.url(name), "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollLog(ctx context.Context, name string, secs int, last *LogInfo) (*LogInfo, error) {

	v := &LogInfo{name: name}
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}

	etag, e := c.poll(ctx, c.logURL(name), otag, secs, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" && last != nil {
		return last, nil
	}
	v.etag = etag
	return v, nil
}

// GetLog returns the recent output of the named process, or of every
// process when name is empty.
func (c *Client) GetLog(ctx context.Context, name string) (*LogInfo, error) {
	return c.pollLog(ctx, name, 0, nil)
}

// WatchLog waits for the log to change from last.
func (c *Client) WatchLog(ctx context.Context, name string, last *LogInfo) (*LogInfo, error) {

	// Let the poll wait for up to 300 secs (5 minutes).
	return c.pollLog(ctx, name, MaxPollTime, last)
}

// FlushLog discards the remembered output of the named process, or of
// every process when name is empty.
func (c *Client) FlushLog(ctx context.Context, name string) error {
	return c.send(ctx, "DELETE", c.logURL(name), nil)
}

// Shutdown asks the supervisor to shut down.  It returns once the
// request is accepted, not when the shutdown completes.
func (c *Client) Shutdown(ctx context.Context, timeout time.Duration) error {
	return c.post(ctx, c.base+"/shutdown",
		&ShutdownRequest{TimeoutMs: timeout.Milliseconds()})
}

// NewClient returns a Client handle.  The transport maybe nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t http.RoundTripper, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	c := &Client{
		base:   strings.TrimSuffix(baseURI, "/"),
		client: &http.Client{Transport: t},
	}
	return c
}

// Name is the process the log belongs to, empty for the combined log.
func (l *LogInfo) Name() string {
	return l.name
}
