package workflow

import (
	"bgmrules/internal/anime"
	"bgmrules/internal/fileutil"
)

// SaveResults writes resolutions as the indented JSON array rule generation
// reads back.
func SaveResults(path string, resolutions []anime.Resolution) error {
	if resolutions == nil {
		resolutions = []anime.Resolution{}
	}
	return fileutil.WriteJSON(path, resolutions)
}

// LoadResults reads a file written by SaveResults.
func LoadResults(path string) ([]anime.Resolution, error) {
	var resolutions []anime.Resolution
	if err := fileutil.ReadJSON(path, &resolutions); err != nil {
		return nil, err
	}
	return resolutions, nil
}

// SaveWorks writes cleaned works so resolution can be rerun on its own.
func SaveWorks(path string, works []anime.Work) error {
	if works == nil {
		works = []anime.Work{}
	}
	return fileutil.WriteJSON(path, works)
}

// LoadWorks reads a JSON array of works.
func LoadWorks(path string) ([]anime.Work, error) {
	var works []anime.Work
	if err := fileutil.ReadJSON(path, &works); err != nil {
		return nil, err
	}
	return works, nil
}
