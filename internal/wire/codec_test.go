// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := Message{
		Headers: map[string]string{"cmd": "LOGIN", "status": "ok"},
		Body:    []byte("hello world"),
	}

	var d Decoder
	d.Feed(Encode(msg))

	got, ok, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok {
		t.Fatal("Decode: expected a complete frame")
	}
	if got.Header("cmd", "") != "LOGIN" || got.Header("status", "") != "ok" {
		t.Fatalf("headers = %v", got.Headers)
	}
	if !bytes.Equal(got.Body, msg.Body) {
		t.Fatalf("body = %q, want %q", got.Body, msg.Body)
	}
}

func TestDecodeNeedsMoreBytes(t *testing.T) {
	msg := Message{Headers: map[string]string{"cmd": "DIR_PWD"}}
	encoded := Encode(msg)

	var d Decoder
	d.Feed(encoded[:len(encoded)-1])

	_, ok, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ok {
		t.Fatal("Decode: expected incomplete frame to report false")
	}

	d.Feed(encoded[len(encoded)-1:])
	_, ok, err = d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok {
		t.Fatal("Decode: expected frame to complete once remaining byte arrives")
	}
}

func TestDecodeMultipleFramesInOneBuffer(t *testing.T) {
	first := Encode(Message{Headers: map[string]string{"cmd": "A"}})
	second := Encode(Message{Headers: map[string]string{"cmd": "B"}})

	var d Decoder
	d.Feed(append(append([]byte{}, first...), second...))

	got1, ok, err := d.Decode()
	if err != nil || !ok {
		t.Fatalf("first Decode: ok=%v err=%v", ok, err)
	}
	if got1.Header("cmd", "") != "A" {
		t.Fatalf("first cmd = %q", got1.Header("cmd", ""))
	}

	got2, ok, err := d.Decode()
	if err != nil || !ok {
		t.Fatalf("second Decode: ok=%v err=%v", ok, err)
	}
	if got2.Header("cmd", "") != "B" {
		t.Fatalf("second cmd = %q", got2.Header("cmd", ""))
	}
}

func TestDecodeBadMagicIsFatal(t *testing.T) {
	var d Decoder
	d.Feed(make([]byte, preambleSize))

	_, _, err := d.Decode()
	if err == nil {
		t.Fatal("expected error for all-zero preamble")
	}
}

func TestDecodeCompactsBufferPastHalfway(t *testing.T) {
	var d Decoder
	for i := 0; i < 10; i++ {
		d.Feed(Encode(Message{Headers: map[string]string{"cmd": "PING"}}))
	}

	for i := 0; i < 6; i++ {
		if _, ok, err := d.Decode(); err != nil || !ok {
			t.Fatalf("Decode %d: ok=%v err=%v", i, ok, err)
		}
	}

	if d.offset != 0 {
		t.Fatalf("offset = %d, want buffer compacted to 0 after passing the midpoint", d.offset)
	}

	for i := 6; i < 10; i++ {
		if _, ok, err := d.Decode(); err != nil || !ok {
			t.Fatalf("Decode %d: ok=%v err=%v", i, ok, err)
		}
	}
}
