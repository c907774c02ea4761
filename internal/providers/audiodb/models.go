package audiodb

// ArtistResponse is the artist search envelope. A missing match comes
// back as a null artists array, not an error status.
type ArtistResponse struct {
	Artists []Artist `json:"artists"`
}

// Artist is an AudioDB artist record. Only the fields the engine consumes
// are mapped.
type Artist struct {
	IDArtist         string `json:"idArtist"`
	StrArtist        string `json:"strArtist"`
	StrStyle         string `json:"strStyle"`
	StrGenre         string `json:"strGenre"`
	StrMood          string `json:"strMood"`
	StrBiographyEN   string `json:"strBiographyEN"`
	StrCountry       string `json:"strCountry"`
	StrArtistThumb   string `json:"strArtistThumb"`
	StrArtistLogo    string `json:"strArtistLogo"`
	StrArtistFanart  string `json:"strArtistFanart"`
	StrArtistBanner  string `json:"strArtistBanner"`
	StrMusicBrainzID string `json:"strMusicBrainzID"`
}

// AlbumResponse is the album search envelope.
type AlbumResponse struct {
	Album []Album `json:"album"`
}

// Album is an AudioDB album record.
type Album struct {
	IDAlbum          string `json:"idAlbum"`
	IDArtist         string `json:"idArtist"`
	StrAlbum         string `json:"strAlbum"`
	StrArtist        string `json:"strArtist"`
	StrStyle         string `json:"strStyle"`
	StrGenre         string `json:"strGenre"`
	StrAlbumThumb    string `json:"strAlbumThumb"`
	StrAlbumThumbHQ  string `json:"strAlbumThumbHQ"`
	StrDescriptionEN string `json:"strDescriptionEN"`
	StrMusicBrainzID string `json:"strMusicBrainzID"`
}
