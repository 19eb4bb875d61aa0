// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

// Niimbot B-series GATT endpoints. A single characteristic carries both
// directions: commands go out as writes, replies come back as notifications.
// Other models can override these via --ble-service / --ble-characteristic.
const (
	defaultServiceUUID = "e7810a71-73ae-499d-8c15-faa9aef0c3f2"
	defaultCharUUID    = "bef8d6c9-9c21-4c9e-b632-bd58c1009f9f"
)

const (
	bleConnectTimeout = 30 * time.Second

	// Conservative write size that fits the default ATT MTU
	bleWriteChunk = 20
)

var (
	bleDeviceOnce sync.Once
	bleDeviceErr  error
)

// initBLEDevice sets up the HCI device. go-ble only supports one default
// device per process, so this runs once no matter how it is reached.
func initBLEDevice() error {
	bleDeviceOnce.Do(func() {
		d, err := linux.NewDevice()
		if err != nil {
			bleDeviceErr = fmt.Errorf("failed to create BLE device: %v", err)
			return
		}
		ble.SetDefaultDevice(d)
	})
	return bleDeviceErr
}

// BLEConnection wraps a GATT client. Notifications are pumped through a pipe
// so callers get the usual blocking Read semantics.
type BLEConnection struct {
	client ble.Client
	char   *ble.Characteristic
	pr     *io.PipeReader
	pw     *io.PipeWriter
}

func (b *BLEConnection) Read(p []byte) (int, error) {
	return b.pr.Read(p)
}

// Write sends data in MTU-sized chunks, each acknowledged by the printer.
func (b *BLEConnection) Write(p []byte) (int, error) {
	for off := 0; off < len(p); off += bleWriteChunk {
		end := off + bleWriteChunk
		if end > len(p) {
			end = len(p)
		}
		if err := b.client.WriteCharacteristic(b.char, p[off:end], true); err != nil {
			return off, err
		}
	}
	return len(p), nil
}

func (b *BLEConnection) Close() error {
	err := b.client.CancelConnection()
	b.pw.CloseWithError(ErrConnectionClosed)
	return err
}

// OpenBLEConnection connects to a printer by MAC address, or when none is
// given, to the first advertiser whose name starts with namePrefix.
func OpenBLEConnection(address, namePrefix string) (Connection, string, error) {
	if err := initBLEDevice(); err != nil {
		return nil, "", err
	}

	serviceUUID, err := ble.Parse(bleService)
	if err != nil {
		return nil, "", fmt.Errorf("bad service UUID %q: %v", bleService, err)
	}
	charUUID, err := ble.Parse(bleChar)
	if err != nil {
		return nil, "", fmt.Errorf("bad characteristic UUID %q: %v", bleChar, err)
	}

	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), bleConnectTimeout))

	var client ble.Client
	if address != "" {
		client, err = ble.Dial(ctx, ble.NewAddr(address))
		if err != nil {
			return nil, "", fmt.Errorf("failed to connect to %s: %v", address, err)
		}
	} else {
		filter := func(a ble.Advertisement) bool {
			return strings.HasPrefix(strings.ToUpper(a.LocalName()), strings.ToUpper(namePrefix))
		}
		client, err = ble.Connect(ctx, filter)
		if err != nil {
			return nil, "", fmt.Errorf("no printer matching %q found: %v", namePrefix, err)
		}
	}

	prof, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return nil, "", fmt.Errorf("failed to discover profile: %v", err)
	}

	var char *ble.Characteristic
	for _, s := range prof.Services {
		if !s.UUID.Equal(serviceUUID) {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID.Equal(charUUID) {
				char = c
			}
		}
	}
	if char == nil {
		client.CancelConnection()
		return nil, "", fmt.Errorf("%w: characteristic %s", niimbot.ErrEndpointNotFound, charUUID)
	}

	pr, pw := io.Pipe()
	conn := &BLEConnection{client: client, char: char, pr: pr, pw: pw}

	// The pipe write blocks until a reader drains it, which keeps
	// notification ordering intact without extra buffering.
	if err := client.Subscribe(char, false, func(req []byte) {
		conn.pw.Write(req)
	}); err != nil {
		client.CancelConnection()
		return nil, "", fmt.Errorf("failed to subscribe to notifications: %v", err)
	}

	// Unblock readers when the device drops the link
	go func() {
		<-client.Disconnected()
		pw.CloseWithError(ErrConnectionClosed)
	}()

	return conn, fmt.Sprintf("BLE: %s", client.Addr()), nil
}
