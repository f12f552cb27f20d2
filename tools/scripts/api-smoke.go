// Package main provides a CI-friendly HTTP smoke test for the forum API.
//
// It validates:
//   - root and readiness endpoints
//   - signup + login (token issued)
//   - guard statuses (401 without a token, 403 with a bad one)
//   - topic create, list, update and delete by the owner
//   - comment create + list
//   - ownership (a second user cannot delete the first user's topic)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type smokeClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

type response struct {
	status int
	body   []byte
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:5000", "API base URL")
		timeout = flag.Duration("timeout", 5*time.Second, "Per-request timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{},
		timeout: *timeout,
		verbose: *verbose,
	}
	root := context.Background()

	if r := c.do(root, http.MethodGet, "/", "", nil); r.status != http.StatusOK {
		fatalf("root: status=%d", r.status)
	}
	if r := c.do(root, http.MethodGet, "/readyz", "", nil); r.status != http.StatusOK {
		fatalf("readyz: status=%d body=%s", r.status, r.body)
	}

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	owner := c.mustSignupAndLogin(root, "smoke-a-"+suffix)
	other := c.mustSignupAndLogin(root, "smoke-b-"+suffix)

	topic := map[string]string{"title": "smoke " + suffix, "content": "created by api-smoke"}
	mustStatus("create without token", c.do(root, http.MethodPost, "/api/topics", "", topic), http.StatusUnauthorized)
	mustStatus("create with bad token", c.do(root, http.MethodPost, "/api/topics", "garbage", topic), http.StatusForbidden)

	created := mustStatus("create topic", c.do(root, http.MethodPost, "/api/topics", owner, topic), http.StatusCreated)
	var topicBody struct {
		Topic struct {
			ID string `json:"id"`
		} `json:"topic"`
	}
	mustDecode("create topic", created.body, &topicBody)
	topicID := topicBody.Topic.ID
	if topicID == "" {
		fatalf("create topic: missing id in %s", created.body)
	}

	mustStatus("list topics", c.do(root, http.MethodGet, "/api/topics?limit=5&sort=-createdAt", "", nil), http.StatusOK)
	mustStatus("update topic", c.do(root, http.MethodPut, "/api/topics/"+topicID, owner,
		map[string]string{"title": "smoke updated " + suffix}), http.StatusOK)

	comment := map[string]string{"content": "first!", "topic": topicID}
	mustStatus("create comment", c.do(root, http.MethodPost, "/api/comments", other, comment), http.StatusCreated)

	listed := mustStatus("list comments", c.do(root, http.MethodGet, "/api/comments?topic="+url.QueryEscape(topicID), "", nil), http.StatusOK)
	var comments []json.RawMessage
	mustDecode("list comments", listed.body, &comments)
	if len(comments) != 1 {
		fatalf("list comments: want 1 comment, got %d", len(comments))
	}

	mustStatus("delete by non-owner", c.do(root, http.MethodDelete, "/api/topics/"+topicID, other, nil), http.StatusForbidden)
	mustStatus("delete by owner", c.do(root, http.MethodDelete, "/api/topics/"+topicID, owner, nil), http.StatusOK)
	mustStatus("delete again", c.do(root, http.MethodDelete, "/api/topics/"+topicID, owner, nil), http.StatusNotFound)

	fmt.Printf("OK: base=%s topic_id=%s\n", c.base, topicID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *smokeClient) mustSignupAndLogin(parent context.Context, username string) string {
	email := username + "@smoke.example.com"
	pw := "smoke-password-" + username

	mustStatus("signup "+username, c.do(parent, http.MethodPost, "/api/auth/signup", "",
		map[string]string{"username": username, "email": email, "password": pw}), http.StatusCreated)

	r := mustStatus("login "+username, c.do(parent, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": email, "password": pw}), http.StatusOK)

	var body struct {
		Token string `json:"token"`
	}
	mustDecode("login "+username, r.body, &body)
	if body.Token == "" {
		fatalf("login %s: empty token", username)
	}
	return body.Token
}

func (c *smokeClient) do(parent context.Context, method, path, bearer string, payload any) response {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			fatalf("%s %s: marshal: %v", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return response{status: res.StatusCode, body: raw}
}

func mustStatus(step string, r response, want int) response {
	if r.status != want {
		fatalf("%s: status=%d want=%d body=%s", step, r.status, want, r.body)
	}
	return r
}

func mustDecode(step string, raw []byte, dst any) {
	if err := json.Unmarshal(raw, dst); err != nil {
		fatalf("%s: decode: %v (%s)", step, err, raw)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
