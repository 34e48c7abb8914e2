package constant

type DownloadStatus string

const (
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusPaused      DownloadStatus = "paused"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusError       DownloadStatus = "error"
)

// Active reports whether a stream in this state blocks a fresh start for the same URL.
func (s DownloadStatus) Active() bool {
	return s == DownloadStatusDownloading || s == DownloadStatusPaused
}

type Platform int

const (
	PlatformTwitch  Platform = 1
	PlatformYouTube Platform = 2
)

func (p Platform) String() string {
	switch p {
	case PlatformTwitch:
		return "twitch"
	case PlatformYouTube:
		return "youtube"
	default:
		return "unknown"
	}
}

type MessageGroup int

const (
	MessageGroupMessages MessageGroup = 1
	MessageGroupBans     MessageGroup = 2
	MessageGroupSubs     MessageGroup = 3
)

var AllMessageGroups = []MessageGroup{MessageGroupMessages, MessageGroupBans, MessageGroupSubs}

func (g MessageGroup) String() string {
	switch g {
	case MessageGroupMessages:
		return "messages"
	case MessageGroupBans:
		return "bans"
	case MessageGroupSubs:
		return "subs"
	default:
		return "unknown"
	}
}

// Liveness values reported by retrieval sources.
const (
	StreamStatusLive = "live"
	StreamStatusPast = "past"
)

type StreamAction string

const (
	StreamActionStart  StreamAction = "start"
	StreamActionPause  StreamAction = "pause"
	StreamActionResume StreamAction = "resume"
	StreamActionStop   StreamAction = "stop"
	StreamActionDelete StreamAction = "delete"
)

type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
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
