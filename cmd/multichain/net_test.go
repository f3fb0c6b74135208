package main

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuessIpAddress24(t *testing.T) {
	addr := net.IP{192, 168, 0, 1}
	actual, err := guessIpAddress(addr, "42")
	if err != nil {
		t.Fatal(err)
	}
	expected := net.IP{192, 168, 0, 42}
	if !actual.Equal(expected) {
		t.Fatalf("expected %v, actual %v", expected, actual)
	}
}

func TestGuessIpAddress16(t *testing.T) {
	addr := net.IP{192, 168, 0, 1}
	actual, err := guessIpAddress(addr, "15.42")
	if err != nil {
		t.Fatal(err)
	}
	expected := net.IP{192, 168, 15, 42}
	if !actual.Equal(expected) {
		t.Fatalf("expected %v, actual %v", expected, actual)
	}
}

func TestGuessIpAddress0(t *testing.T) {
	addr := net.IP{192, 168, 0, 1}
	actual, err := guessIpAddress(addr, "10.100.15.42")
	if err != nil {
		t.Fatal(err)
	}
	expected := net.IP{10, 100, 15, 42}
	if !actual.Equal(expected) {
		t.Fatalf("expected %v, actual %v", expected, actual)
	}
}

func TestGuessIpAddress32(t *testing.T) {
	addr := net.IP{192, 168, 0, 1}
	actual, err := guessIpAddress(addr, "")
	if err != nil {
		t.Fatal(err)
	}
	if !actual.Equal(addr) {
		t.Fatalf("expected %v, actual %v", addr, actual)
	}
}

func TestParsePeers(t *testing.T) {
	book, err := parsePeers([]string{"42", "15.43:9001", "localhost:9002", " :9003"}, net.IP{192, 168, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{
		0: "192.168.0.42:53550",
		1: "192.168.15.43:9001",
		2: "localhost:9002",
		3: "192.168.0.1:9003",
	}, book)

	_, err = parsePeers([]string{"1.2.3.4.5"}, net.IP{192, 168, 0, 1})
	assert.Error(t, err)
}
