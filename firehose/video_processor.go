package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"reelfeed/bluesky"
	"reelfeed/models"

	"github.com/bluesky-social/indigo/api/bsky"
	jetstream_models "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/klauspost/compress/zstd"
	lingua "github.com/pemistahl/lingua-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	postCollection = "app.bsky.feed.post"
	videoCDN       = "https://video.bsky.app/watch"
	maxTitleRunes  = 200
)

var messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reelfeed_firehose_messages_total",
	Help: "Firehose messages by outcome",
}, []string{"outcome"})

// ProfileResolver looks up display names and avatars for authors
type ProfileResolver interface {
	Profile(ctx context.Context, did string) (bluesky.Profile, error)
}

type VideoProcessor struct {
	events             chan<- interface{}
	context            context.Context
	config             FirehoseConfig
	decoder            *zstd.Decoder
	targetLanguages    []lingua.Language
	supportedLanguages map[lingua.Language]string
	languageDetector   lingua.LanguageDetector
	profiles           ProfileResolver
	seq                *atomic.Int64
}

func NewVideoProcessor(ctx context.Context, config FirehoseConfig, events chan<- interface{}, profiles ProfileResolver) *VideoProcessor {
	vp := &VideoProcessor{
		events:             events,
		context:            ctx,
		config:             config,
		targetLanguages:    targetLanguagesToLingua(config.Languages),
		supportedLanguages: getSupportedLanguages(),
		profiles:           profiles,
		seq:                &atomic.Int64{},
	}

	// Detection models are large, only load them when asked to
	if config.RunLanguageDetection && len(vp.targetLanguages) > 0 {
		vp.languageDetector = NewLanguageDetector(vp.targetLanguages)
	}

	if config.JetstreamCompress {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderDicts(jetstream_models.ZSTDDictionary))
		if err != nil {
			log.Fatalf("Failed to create zstd decoder: %v", err)
		}
		vp.decoder = decoder
	}

	return vp
}

// VideoUrls returns the thumbnail and HLS playlist for a video blob
func VideoUrls(did string, cid string) (thumbnail string, playlist string) {
	base := fmt.Sprintf("%s/%s/%s", videoCDN, url.QueryEscape(did), cid)
	return base + "/thumbnail.jpg", base + "/playlist.m3u8"
}

// videoEmbed returns the video attached to a post, directly or next to a quote
func videoEmbed(record *bsky.FeedPost) *bsky.EmbedVideo {
	if record.Embed == nil {
		return nil
	}
	if record.Embed.EmbedVideo != nil {
		return record.Embed.EmbedVideo
	}
	if rwm := record.Embed.EmbedRecordWithMedia; rwm != nil && rwm.Media != nil {
		return rwm.Media.EmbedVideo
	}
	return nil
}

// videoTitle uses the post text, falling back to the alt text
func videoTitle(record *bsky.FeedPost, embed *bsky.EmbedVideo) string {
	title := strings.TrimSpace(record.Text)
	if title == "" && embed.Alt != nil {
		title = strings.TrimSpace(*embed.Alt)
	}
	return truncateTitle(title)
}

// truncateTitle collapses whitespace, titles are shown on a single card line
func truncateTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes-1]) + "…"
	}
	return title
}

func (p *VideoProcessor) send(event interface{}) error {
	select {
	case p.events <- event:
		return nil
	case <-p.context.Done():
		return p.context.Err()
	}
}

// processMessage turns a Jetstream commit into writer events
func (p *VideoProcessor) processMessage(msg *RawMessage) error {
	data := msg.Data

	if p.decoder != nil {
		decoded, err := p.decoder.DecodeAll(msg.Data, nil)
		if err != nil {
			return fmt.Errorf("failed to decompress message: %w", err)
		}
		data = decoded
	}

	var event jetstream_models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	// Messages are processed concurrently, keep the highest cursor
	for {
		current := p.seq.Load()
		if event.TimeUS <= current || p.seq.CompareAndSwap(current, event.TimeUS) {
			break
		}
	}

	if event.Commit == nil || event.Commit.Collection != postCollection {
		messagesProcessed.WithLabelValues("skipped").Inc()
		return nil
	}

	uri := fmt.Sprintf("at://%s/%s/%s", event.Did, postCollection, event.Commit.RKey)

	switch event.Commit.Operation {
	case jetstream_models.CommitOperationDelete:
		// Most deletes are for posts we never indexed, the writer ignores those
		messagesProcessed.WithLabelValues("deleted").Inc()
		return p.send(models.DeleteVideoEvent{Uri: uri})
	case jetstream_models.CommitOperationCreate:
	default:
		messagesProcessed.WithLabelValues("skipped").Inc()
		return nil
	}

	var record bsky.FeedPost
	if err := json.Unmarshal(event.Commit.Record, &record); err != nil {
		return fmt.Errorf("failed to unmarshal post: %w", err)
	}

	video, ok, err := p.buildVideo(event.Did, uri, &record)
	if err != nil {
		return err
	}
	if !ok {
		messagesProcessed.WithLabelValues("filtered").Inc()
		return nil
	}

	log.WithFields(log.Fields{
		"uri":       video.Uri,
		"createdAt": video.CreatedAt.Unix(),
		"title":     video.Title,
		"languages": video.Languages,
	}).Info("Adding video to catalogue")

	messagesProcessed.WithLabelValues("indexed").Inc()
	return p.send(models.CreateVideoEvent{Video: video})
}

// buildVideo reports false for posts without a video or with a caption the
// filters reject
func (p *VideoProcessor) buildVideo(did string, uri string, record *bsky.FeedPost) (models.Video, bool, error) {
	embed := videoEmbed(record)
	if embed == nil || embed.Video == nil {
		return models.Video{}, false, nil
	}

	title := videoTitle(record, embed)
	if title != "" && (!HasEnoughLetters(title) || ContainsRepetitivePattern(title) || ContainsSpamContent(title)) {
		return models.Video{}, false, nil
	}

	ok, langs := p.acceptLanguages(title, record.Langs)
	if !ok {
		return models.Video{}, false, nil
	}

	createdAt, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		return models.Video{}, false, fmt.Errorf("failed to parse creation time: %w", err)
	}

	thumbnail, playlist := VideoUrls(did, embed.Video.Ref.String())
	video := models.Video{
		Uri:          uri,
		Title:        title,
		AuthorDid:    did,
		AuthorName:   did,
		ThumbnailUrl: thumbnail,
		PlaylistUrl:  playlist,
		Languages:    langs,
		CreatedAt:    createdAt.UTC(),
	}

	if p.profiles != nil {
		profile, err := p.profiles.Profile(p.context, did)
		if err != nil {
			log.WithFields(log.Fields{
				"did":   did,
				"error": err,
			}).Warn("Could not resolve author profile")
		} else {
			video.AuthorName = profile.Name()
			video.AuthorAvatar = profile.Avatar
		}
	}

	return video, true, nil
}

// acceptLanguages decides whether a video matches the configured languages
// and returns the languages to index it under
func (p *VideoProcessor) acceptLanguages(text string, langs []string) (bool, []string) {
	if len(p.targetLanguages) == 0 {
		return true, langs
	}

	if p.languageDetector != nil && text != "" {
		return p.DetectLanguage(text, langs, p.targetLanguages)
	}

	return lo.Some(langs, p.getTargetIsoCodes()), langs
}

func (p *VideoProcessor) getTargetIsoCodes() []string {
	return lo.FilterMap(p.targetLanguages, func(lang lingua.Language, _ int) (string, bool) {
		code := linguaToISO(lang, p.supportedLanguages)
		return code, code != ""
	})
}

// DetectLanguage checks the caption against the target languages and adds
// the detected one to the post's own language tags
func (p *VideoProcessor) DetectLanguage(text string, currentLangs []string, targetLangs []lingua.Language) (bool, []string) {
	// Confidently English captions are skipped unless English is wanted
	englishConf := p.languageDetector.ComputeLanguageConfidence(text, lingua.English)
	if englishConf > 0.8 && !lo.Contains(targetLangs, lingua.English) {
		return false, currentLangs
	}

	var highestConf float64
	var detectedLang lingua.Language
	for _, lang := range targetLangs {
		conf := p.languageDetector.ComputeLanguageConfidence(text, lang)
		if conf > highestConf {
			highestConf = conf
			detectedLang = lang
		}
	}

	if highestConf < p.config.ConfidenceThreshold {
		return false, currentLangs
	}

	log.Debugf("%s confidence: %.2f (threshold: %.2f)",
		detectedLang.String(), highestConf, p.config.ConfidenceThreshold)

	updatedLangs := append([]string{}, currentLangs...)
	langCode := linguaToISO(detectedLang, p.supportedLanguages)
	if langCode != "" && !lo.Contains(updatedLangs, langCode) {
		updatedLangs = append(updatedLangs, langCode)
	}

	return true, updatedLangs
}
