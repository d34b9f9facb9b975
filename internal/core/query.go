package core

import (
	"context"
	"fmt"
	"net/http"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

// GetByDevice returns the readings of one device, oldest first.
func (s *Service) GetByDevice(ctx context.Context, deviceID string, page storage.Page) Response {
	readings, err := s.store.QueryByDevice(ctx, deviceID, page)
	if err != nil {
		s.logger.Error(ctx, fmt.Sprintf("error reading data for device %s: %v", deviceID, err))
		return failure(MsgReadFailed, err)
	}

	if len(readings) == 0 {
		return message(http.StatusNotFound, MsgNoDeviceData)
	}
	return Response{Status: http.StatusOK, Body: utc(readings)}
}

// GetLatestAll returns the latest reading of every device.
func (s *Service) GetLatestAll(ctx context.Context) Response {
	readings, err := s.store.QueryLatestPerDevice(ctx)
	if err != nil {
		s.logger.Error(ctx, fmt.Sprintf("error reading latest data: %v", err))
		return failure(MsgReadFailed, err)
	}

	if len(readings) == 0 {
		return message(http.StatusNotFound, MsgNoData)
	}
	return Response{Status: http.StatusOK, Body: utc(readings)}
}

// ListDevices returns the known device ids. An empty fleet is a 200 with
// an empty list.
func (s *Service) ListDevices(ctx context.Context) Response {
	devices, err := s.store.ListDeviceIDs(ctx)
	if err != nil {
		s.logger.Error(ctx, fmt.Sprintf("error listing devices: %v", err))
		return failure(MsgReadFailed, err)
	}

	if devices == nil {
		devices = []string{}
	}
	return Response{Status: http.StatusOK, Body: devices}
}

// utc normalises timestamps so they encode with a Z suffix.
func utc(readings []storage.Reading) []storage.Reading {
	for i := range readings {
		readings[i].Timestamp = readings[i].Timestamp.UTC()
	}
	return readings
}
