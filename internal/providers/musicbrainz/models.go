package musicbrainz

// Tag is a folksonomy tag with its vote count.
type Tag struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

// ArtistCredit names one credited artist on a recording or release.
type ArtistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

// Artist is one artist search result. Score is the Lucene match score in
// 0-100.
type Artist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SortName       string `json:"sort-name"`
	Score          int    `json:"score"`
	Disambiguation string `json:"disambiguation"`
	Type           string `json:"type"`
	Country        string `json:"country"`
	Tags           []Tag  `json:"tags"`
}

// ArtistSearchResponse is the /artist search envelope.
type ArtistSearchResponse struct {
	Count   int      `json:"count"`
	Offset  int      `json:"offset"`
	Artists []Artist `json:"artists"`
}

// ReleaseGroup is one release-group search result.
type ReleaseGroup struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Score          int            `json:"score"`
	PrimaryType    string         `json:"primary-type"`
	Disambiguation string         `json:"disambiguation"`
	FirstRelease   string         `json:"first-release-date"`
	ArtistCredit   []ArtistCredit `json:"artist-credit"`
	Tags           []Tag          `json:"tags"`
}

// ReleaseGroupSearchResponse is the /release-group search envelope.
type ReleaseGroupSearchResponse struct {
	Count         int            `json:"count"`
	Offset        int            `json:"offset"`
	ReleaseGroups []ReleaseGroup `json:"release-groups"`
}

// Recording is one recording search result.
type Recording struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Score          int            `json:"score"`
	Length         int            `json:"length"`
	Disambiguation string         `json:"disambiguation"`
	ArtistCredit   []ArtistCredit `json:"artist-credit"`
	Tags           []Tag          `json:"tags"`
}

// RecordingSearchResponse is the /recording search envelope.
type RecordingSearchResponse struct {
	Count      int         `json:"count"`
	Offset     int         `json:"offset"`
	Recordings []Recording `json:"recordings"`
}
