package transfer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"media_relay_bot/internal/pkg/preferences"
	"media_relay_bot/internal/pkg/store/domain"
)

var (
	videoExtensions = map[string]bool{
		"mp4": true, "mkv": true, "avi": true, "mov": true, "wmv": true,
		"flv": true, "webm": true, "mpeg": true, "mpg": true, "3gp": true,
		"m4v": true, "ogv": true,
	}
	audioExtensions = map[string]bool{
		"mp3": true, "wav": true, "flac": true, "aac": true, "ogg": true,
		"wma": true, "m4a": true, "opus": true, "aiff": true, "ac3": true,
	}
	unsafeName = regexp.MustCompile(`[<>:"/\\|?*']`)
)

// ProcessText применяет замены, затем убирает удаляемые слова.
func ProcessText(text string, prefs *preferences.UserPreferences) string {
	if text == "" || prefs == nil {
		return text
	}
	for _, word := range domain.SortedKeys(prefs.Replacements) {
		text = strings.ReplaceAll(text, word, prefs.Replacements[word])
	}
	if len(prefs.DeleteWords) == 0 {
		return text
	}
	kept := make([]string, 0)
	for _, w := range strings.Fields(text) {
		if !prefs.IsDeleted(w) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// ComposeCaption склеивает обработанную подпись источника и подпись пользователя.
func ComposeCaption(processed, custom string) string {
	switch {
	case processed != "" && custom != "":
		return processed + "\n\n" + custom
	case custom != "":
		return custom
	default:
		return processed
	}
}

// maxNameBytes - предел длины имени файла в большинстве файловых систем.
const maxNameBytes = 255

// Sanitize убирает опасные символы и укорачивает имя по границе руны,
// сохраняя расширение.
func Sanitize(name string) string {
	name = strings.ToValidUTF8(name, "_")
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")
	if len(name) <= maxNameBytes {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > 16 || len(ext) == len(name) {
		ext = ""
	}
	base := name[:len(name)-len(ext)]
	cut := 0
	for i, r := range base {
		if i+utf8.RuneLen(r) > maxNameBytes-len(ext) {
			break
		}
		cut = i + utf8.RuneLen(r)
	}
	return strings.TrimRight(base[:cut], " .") + ext
}

// RenamedName строит новое имя файла: "<имя> <тег>.<расширение>".
func RenamedName(fileName string, prefs *preferences.UserPreferences) string {
	base, ext := fileName, "mp4"
	if dot := strings.LastIndex(fileName, "."); dot > 0 {
		base = fileName[:dot]
		candidate := fileName[dot+1:]
		if isAlpha(candidate) && len(candidate) <= 9 && !videoExtensions[strings.ToLower(candidate)] {
			ext = candidate
		}
	}

	if prefs != nil {
		for _, w := range prefs.DeleteWords {
			base = strings.ReplaceAll(base, w, "")
		}
		for _, word := range domain.SortedKeys(prefs.Replacements) {
			base = strings.ReplaceAll(base, word, prefs.Replacements[word])
		}
	}

	base = strings.TrimSpace(base)
	if prefs != nil && prefs.RenameTag != "" {
		base = strings.TrimSpace(base + " " + prefs.RenameTag)
	}
	if base == "" {
		base = "file"
	}
	return Sanitize(base + "." + ext)
}

// RenameFile переименовывает скачанный файл по правилам пользователя.
func RenameFile(path string, prefs *preferences.UserPreferences) (string, error) {
	target := filepath.Join(filepath.Dir(path), RenamedName(filepath.Base(path), prefs))
	if target == path {
		return path, nil
	}
	if err := os.Rename(path, target); err != nil {
		return path, err
	}
	return target, nil
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
