package constant

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusLive      SessionStatus = "LIVE"
	SessionStatusEnded     SessionStatus = "ENDED"
)

func (s SessionStatus) String() string {
	return string(s)
}

type SlideStatus string

const (
	SlideStatusNotReady SlideStatus = "NOT_READY"
	SlideStatusReady    SlideStatus = "READY"
	SlideStatusFailed   SlideStatus = "FAILED"
)

type RecordingStatus string

const (
	RecordingStatusNotStarted RecordingStatus = "NOT_STARTED"
	RecordingStatusRecording  RecordingStatus = "RECORDING"
	RecordingStatusMerging    RecordingStatus = "MERGING"
	RecordingStatusCompleted  RecordingStatus = "COMPLETED"
	RecordingStatusFailed     RecordingStatus = "FAILED"
)

type LessonStatus string

const (
	LessonStatusUploaded LessonStatus = "UPLOADED"
	LessonStatusReady    LessonStatus = "READY"
	LessonStatusFailed   LessonStatus = "FAILED"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCompleted  JobStatus = "COMPLETED"
)

type JobType string

const (
	JobTypeTranscoder     JobType = "transcoder"
	JobTypeSlideConvert   JobType = "slide_convert"
	JobTypeRecordingMerge JobType = "recording_merge"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
