package db

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/tejiriaustin/resource-monitor/models"
)

type ClientTestSuite struct {
	suite.Suite
	client *Client
}

func (suite *ClientTestSuite) SetupTest() {
	client, err := NewClient(":memory:")
	suite.Require().NoError(err)
	suite.Require().NoError(client.CreateChangeEventsTable())
	suite.client = client
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.NoError(suite.client.Close())
}

func (suite *ClientTestSuite) TestInsertAndGetChangeEvents() {
	detectedAt := time.Date(2024, 7, 1, 12, 30, 0, 0, time.UTC)
	inserted := []models.ChangeEvent{
		{Kind: models.SizeChanged, Path: "/data/file1", DetectedAt: detectedAt},
		{Kind: models.ContentsChanged, Path: "/data/file2", DetectedAt: detectedAt.Add(time.Second)},
		{Kind: models.Deleted, Path: "/data/file3", DetectedAt: detectedAt.Add(2 * time.Second)},
	}
	for _, event := range inserted {
		id, err := suite.client.InsertChangeEvent(event)
		suite.Require().NoError(err)
		suite.Positive(id)
	}

	events, err := suite.client.GetChangeEvents(0)
	suite.Require().NoError(err)
	suite.Require().Len(events, 3)

	// newest first
	suite.Equal(models.Deleted, events[0].Kind)
	suite.Equal("/data/file3", events[0].Path)
	suite.True(events[0].DetectedAt.Equal(detectedAt.Add(2 * time.Second)))
	suite.Equal(models.SizeChanged, events[2].Kind)

	limited, err := suite.client.GetChangeEvents(2)
	suite.Require().NoError(err)
	suite.Len(limited, 2)
}

func (suite *ClientTestSuite) TestGetChangeEventsByPath() {
	for i := 0; i < 3; i++ {
		_, err := suite.client.InsertChangeEvent(models.NewChangeEvent(models.Deleted, "/data/file3"))
		suite.Require().NoError(err)
	}
	_, err := suite.client.InsertChangeEvent(models.NewChangeEvent(models.SizeChanged, "/data/file1"))
	suite.Require().NoError(err)

	events, err := suite.client.GetChangeEventsByPath("/data/file3", 10)
	suite.Require().NoError(err)
	suite.Len(events, 3)
	for _, event := range events {
		suite.Equal("/data/file3", event.Path)
	}

	events, err = suite.client.GetChangeEventsByPath("/data/unknown", 10)
	suite.Require().NoError(err)
	suite.Empty(events)
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

func TestCloseInto(t *testing.T) {
	scanErr := errors.New("scan failed")
	closeErr := errors.New("close failed")

	tests := []struct {
		name     string
		initial  error
		closeErr error
		wantErrs []error
	}{
		{name: "clean close", initial: nil, closeErr: nil},
		{name: "close failure is returned", initial: nil, closeErr: closeErr, wantErrs: []error{closeErr}},
		{name: "close failure joins earlier error", initial: scanErr, closeErr: closeErr, wantErrs: []error{scanErr, closeErr}},
		{name: "earlier error kept", initial: scanErr, closeErr: nil, wantErrs: []error{scanErr}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.initial
			closeInto(closerFunc(func() error { return tt.closeErr }), &err)

			if len(tt.wantErrs) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErrs {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}
