package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

type fakeS3 struct {
	puts []*s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func archiveSnapshot(shouldEnd bool) *Snapshot {
	return &Snapshot{
		ConversationKey: "conv:session:s-1",
		ContactID:       "c-1",
		Messages: []Message{
			{Role: RoleUser, Text: "hi", Origin: OriginLive, ExternalID: "m-1", Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
			{Role: RoleAssistant, Text: "hello", Origin: OriginLive, Timestamp: time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)},
		},
		Facts:         Facts{FactName: "Ana"},
		Score:         3,
		Routing:       RoutingState{Current: StageCold, Next: StageCold, ShouldEnd: shouldEnd},
		SchemaVersion: CurrentSchemaVersion,
		LastUpdated:   time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC),
	}
}

func expectMirror(mock sqlmock.Sqlmock, messageCount int) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM conversation_messages").
		WillReturnResult(sqlmock.NewResult(0, int64(messageCount)))
	for i := 0; i < messageCount; i++ {
		mock.ExpectExec("INSERT INTO conversation_messages").
			WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}
	mock.ExpectCommit()
}

func TestArchiverMirrorsSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectMirror(mock, 2)

	archiver := NewArchiver(db, nil, "", logging.New("error"))
	err = archiver.ArchiveTurn(context.Background(), archiveSnapshot(false), 4)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiverExportsEndedConversations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectMirror(mock, 2)

	s3Fake := &fakeS3{}
	archiver := NewArchiver(db, nil, "archive-bucket", logging.New("error"))
	archiver.s3 = s3Fake

	err = archiver.ArchiveTurn(context.Background(), archiveSnapshot(true), 4)

	require.NoError(t, err)
	require.Len(t, s3Fake.puts, 1)
	assert.Equal(t, "archive-bucket", aws.ToString(s3Fake.puts[0].Bucket))
	assert.Contains(t, aws.ToString(s3Fake.puts[0].Key), "conversations/conv:session:s-1/")
}

func TestArchiverSkipsExportWhileConversationOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectMirror(mock, 2)

	s3Fake := &fakeS3{}
	archiver := NewArchiver(db, nil, "archive-bucket", logging.New("error"))
	archiver.s3 = s3Fake

	err = archiver.ArchiveTurn(context.Background(), archiveSnapshot(false), 4)

	require.NoError(t, err)
	assert.Empty(t, s3Fake.puts)
}

func TestArchiverRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	archiver := NewArchiver(db, nil, "", logging.New("error"))
	err = archiver.ArchiveTurn(context.Background(), archiveSnapshot(false), 4)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
