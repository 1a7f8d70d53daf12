// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the cloudvault-client command's connection
// to a cloudvault-server and the request/response exchanges behind
// each shell command.
package client

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/cloudvault/cloudvault/internal/wire"
)

// uploadChunkSize is how much of a local file the client sends per
// FILE_UPLOAD_CHUNK request.
const uploadChunkSize = 64 * 1024

// downloadChunkSize is how many bytes the client asks for per
// FILE_DOWNLOAD_FETCH request.
const downloadChunkSize = 64 * 1024

// Client holds one connection to a cloudvault-server and the session
// state (current directory, bearer token) built up over its lifetime.
type Client struct {
	conn    net.Conn
	decoder wire.Decoder
	readBuf []byte

	Username string
	token    string
	cwd      string
}

// Dial connects to a cloudvault-server at address.
func Dial(address string) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("client: dialing %s: %w", address, err)
	}
	return &Client{conn: conn, readBuf: make([]byte, 64*1024), cwd: "."}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// LoggedIn reports whether a LOGIN or TOKEN_AUTH has succeeded on this
// connection.
func (c *Client) LoggedIn() bool {
	return c.token != ""
}

// Cwd returns the client's current working directory as last reported
// by the server.
func (c *Client) Cwd() string {
	return c.cwd
}

// roundTrip sends one request frame and blocks for its response.
func (c *Client) roundTrip(headers map[string]string, body []byte) (wire.Message, error) {
	if _, err := c.conn.Write(wire.Encode(wire.Message{Headers: headers, Body: body})); err != nil {
		return wire.Message{}, fmt.Errorf("client: writing request: %w", err)
	}
	for {
		msg, ok, err := c.decoder.Decode()
		if err != nil {
			return wire.Message{}, fmt.Errorf("client: decoding response: %w", err)
		}
		if ok {
			return msg, nil
		}
		n, readErr := c.conn.Read(c.readBuf)
		if n > 0 {
			c.decoder.Feed(c.readBuf[:n])
		}
		if readErr != nil {
			return wire.Message{}, fmt.Errorf("client: reading response: %w", readErr)
		}
	}
}

func (c *Client) authedHeaders(cmd string) map[string]string {
	return map[string]string{"cmd": cmd, "token": c.token}
}

// Register asks the server to create a new account.
func (c *Client) Register(username, password string) (string, error) {
	resp, err := c.roundTrip(map[string]string{
		"cmd": "REGISTER", "username": username, "password": password,
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Header("status", ""), nil
}

// Login authenticates and stores the issued bearer token for use by
// every subsequent command on this connection.
func (c *Client) Login(username, password string) (string, error) {
	resp, err := c.roundTrip(map[string]string{
		"cmd": "LOGIN", "username": username, "password": password,
	}, nil)
	if err != nil {
		return "", err
	}
	status := resp.Header("status", "")
	if status == "ok" {
		c.Username = username
		c.token = resp.Header("token", "")
		c.cwd = resp.Header("home", ".")
	}
	return status, nil
}

// Pwd returns the server's view of the client's current directory.
func (c *Client) Pwd() (string, error) {
	resp, err := c.roundTrip(c.authedHeaders("DIR_PWD"), nil)
	if err != nil {
		return "", err
	}
	if status := resp.Header("status", ""); status != "ok" {
		return "", fmt.Errorf("client: pwd: %s", status)
	}
	c.cwd = resp.Header("path", c.cwd)
	return c.cwd, nil
}

// Cd changes the client's current directory.
func (c *Client) Cd(path string) error {
	headers := c.authedHeaders("DIR_CHANGE")
	headers["path"] = path
	resp, err := c.roundTrip(headers, nil)
	if err != nil {
		return err
	}
	status := resp.Header("status", "")
	if status != "ok" {
		return fmt.Errorf("client: cd %s: %s", path, status)
	}
	c.cwd = resp.Header("path", c.cwd)
	return nil
}

// Mkdir creates a directory relative to the current directory.
func (c *Client) Mkdir(path string) error {
	headers := c.authedHeaders("DIR_MKDIR")
	headers["path"] = path
	resp, err := c.roundTrip(headers, nil)
	if err != nil {
		return err
	}
	if status := resp.Header("status", ""); status != "ok" {
		return fmt.Errorf("client: mkdir %s: %s", path, status)
	}
	return nil
}

// Ls lists the contents of path (or the current directory, if path is
// empty) and returns the raw "name|kind|size|modified" lines.
func (c *Client) Ls(path string) ([]string, error) {
	headers := c.authedHeaders("DIR_LIST")
	if path != "" {
		headers["path"] = path
	}
	resp, err := c.roundTrip(headers, nil)
	if err != nil {
		return nil, err
	}
	if status := resp.Header("status", ""); status != "ok" {
		return nil, fmt.Errorf("client: ls %s: %s", path, status)
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}
	lines := splitLines(resp.Body)
	return lines, nil
}

func splitLines(body []byte) []string {
	var lines []string
	start := 0
	for i, b := range body {
		if b == '\n' {
			lines = append(lines, string(body[start:i]))
			start = i + 1
		}
	}
	if start < len(body) {
		lines = append(lines, string(body[start:]))
	}
	return lines
}

// Rm deletes the file or directory at path.
func (c *Client) Rm(path string) error {
	headers := c.authedHeaders("FILE_DELETE")
	headers["path"] = path
	resp, err := c.roundTrip(headers, nil)
	if err != nil {
		return err
	}
	if status := resp.Header("status", ""); status != "ok" {
		return fmt.Errorf("client: rm %s: %s", path, status)
	}
	return nil
}

// Put uploads localPath to remotePath, resuming from whatever offset
// the server reports already received for this content digest.
func (c *Client) Put(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("client: opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("client: stat %s: %w", localPath, err)
	}
	digest, err := fileMD5(f)
	if err != nil {
		return fmt.Errorf("client: hashing %s: %w", localPath, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("client: rewinding %s: %w", localPath, err)
	}

	headers := c.authedHeaders("FILE_UPLOAD_INIT")
	headers["path"] = remotePath
	headers["md5"] = digest
	headers["size"] = strconv.FormatInt(info.Size(), 10)
	resp, err := c.roundTrip(headers, nil)
	if err != nil {
		return err
	}
	switch resp.Header("status", "") {
	case "instant":
		return nil
	case "ready":
	default:
		return fmt.Errorf("client: upload init %s: %s", remotePath, resp.Header("status", ""))
	}

	offset, err := strconv.ParseUint(resp.Header("offset", "0"), 10, 64)
	if err != nil {
		return fmt.Errorf("client: parsing resume offset: %w", err)
	}
	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return fmt.Errorf("client: seeking to resume offset %d: %w", offset, err)
		}
	}

	buf := make([]byte, uploadChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			chunkHeaders := c.authedHeaders("FILE_UPLOAD_CHUNK")
			chunkHeaders["offset"] = strconv.FormatUint(offset, 10)
			resp, err := c.roundTrip(chunkHeaders, buf[:n])
			if err != nil {
				return err
			}
			if status := resp.Header("status", ""); status != "ok" {
				return fmt.Errorf("client: upload chunk at offset %d: %s", offset, status)
			}
			offset, err = strconv.ParseUint(resp.Header("received", "0"), 10, 64)
			if err != nil {
				return fmt.Errorf("client: parsing received offset: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fmt.Errorf("client: reading %s: %w", localPath, readErr)
		}
	}

	resp, err = c.roundTrip(c.authedHeaders("FILE_UPLOAD_COMMIT"), nil)
	if err != nil {
		return err
	}
	if status := resp.Header("status", ""); status != "ok" {
		return fmt.Errorf("client: upload commit %s: %s", remotePath, status)
	}
	return nil
}

// Get downloads remotePath to localPath.
func (c *Client) Get(remotePath, localPath string) error {
	headers := c.authedHeaders("FILE_DOWNLOAD_INIT")
	headers["path"] = remotePath
	resp, err := c.roundTrip(headers, nil)
	if err != nil {
		return err
	}
	if status := resp.Header("status", ""); status != "ok" {
		return fmt.Errorf("client: download init %s: %s", remotePath, status)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("client: creating %s: %w", localPath, err)
	}
	defer out.Close()

	var offset uint64
	for {
		fetchHeaders := c.authedHeaders("FILE_DOWNLOAD_FETCH")
		fetchHeaders["path"] = remotePath
		fetchHeaders["offset"] = strconv.FormatUint(offset, 10)
		fetchHeaders["length"] = strconv.Itoa(downloadChunkSize)
		resp, err := c.roundTrip(fetchHeaders, nil)
		if err != nil {
			return err
		}
		status := resp.Header("status", "")
		if status != "ok" && status != "done" {
			return fmt.Errorf("client: download fetch %s at offset %d: %s", remotePath, offset, status)
		}
		if len(resp.Body) > 0 {
			if _, err := out.Write(resp.Body); err != nil {
				return fmt.Errorf("client: writing %s: %w", localPath, err)
			}
			offset += uint64(len(resp.Body))
		}
		if status == "done" {
			return nil
		}
	}
}

func fileMD5(f *os.File) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
