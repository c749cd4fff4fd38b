package firehose_test

import (
	"testing"

	"reelfeed/firehose"

	"github.com/stretchr/testify/assert"
)

func TestHasEnoughLetters(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{
			name:     "empty string",
			text:     "",
			expected: false,
		},
		{
			name:     "only special characters",
			text:     "!@#$%^&*()",
			expected: false,
		},
		{
			name:     "few letters",
			text:     "hi! :) 123456789",
			expected: false,
		},
		{
			name:     "regular caption",
			text:     "Sunset timelapse over the fjord",
			expected: true,
		},
		{
			name:     "norwegian letters",
			text:     "Blåbær og røde æbler på trærne",
			expected: true,
		},
		{
			name:     "other scripts count as letters",
			text:     "東京の夜景 タイムラプス",
			expected: true,
		},
		{
			name:     "mostly emoji",
			text:     "Hi! \U0001F60A \U0001F31E 123 !!! ???",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, firehose.HasEnoughLetters(tt.text))
		})
	}
}

func TestContainsRepetitivePattern(t *testing.T) {
	family := "\U0001F468\u200d\U0001F469\u200d\U0001F467"

	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{
			name:     "empty string",
			text:     "",
			expected: false,
		},
		{
			name:     "short text",
			text:     "hi",
			expected: false,
		},
		{
			name:     "normal caption",
			text:     "Making sourdough bread from scratch",
			expected: false,
		},
		{
			name:     "repeating characters",
			text:     "wooooooow",
			expected: true,
		},
		{
			name:     "repeating words",
			text:     "clip clip clip clip",
			expected: true,
		},
		{
			name:     "repeating words with case variation",
			text:     "Video VIDEO video ViDeO",
			expected: true,
		},
		{
			name:     "repeating emoji",
			text:     "\U0001F389\U0001F389\U0001F389\U0001F389\U0001F389",
			expected: true,
		},
		{
			name:     "repeating two symbols",
			text:     "sksksksksksksksk what is this",
			expected: true,
		},
		{
			name:     "repeating joined emoji",
			text:     family + family + family + family + family + " so cute",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, firehose.ContainsRepetitivePattern(tt.text))
		})
	}
}

func TestContainsSpamContent(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{
			name:     "empty string",
			text:     "",
			expected: false,
		},
		{
			name:     "normal caption",
			text:     "Our cat discovering snow for the first time",
			expected: false,
		},
		{
			name:     "onlyfans spam",
			text:     "Full video on OnlyFans.com",
			expected: true,
		},
		{
			name:     "follow spam",
			text:     "Follow me! Follow back! F4F",
			expected: true,
		},
		{
			name:     "excessive hashtags",
			text:     "#fyp #viral #video #trending #cats #funny #lol",
			expected: true,
		},
		{
			name:     "excessive mentions",
			text:     "@user1 @user2 @user3 @user4 @user5 @user6",
			expected: true,
		},
		{
			name:     "excessive emojis",
			text:     "Hey! \U0001F60A\U0001F60D\U0001F970\U0001F618\U0001F61A\U0001F60B\U0001F61B\U0001F61D\U0001F61C",
			expected: true,
		},
		{
			name:     "adult content",
			text:     "Watch the 18+ version",
			expected: true,
		},
		{
			name:     "repeated hashtags",
			text:     "##trending",
			expected: true,
		},
		{
			name:     "high hashtag ratio",
			text:     "Dance #fyp #viral #dance",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, firehose.ContainsSpamContent(tt.text))
		})
	}
}

func TestVideoUrls(t *testing.T) {
	thumb, playlist := firehose.VideoUrls("did:plc:abc123", "bafkreicid")
	assert.Equal(t, "https://video.bsky.app/watch/did%3Aplc%3Aabc123/bafkreicid/thumbnail.jpg", thumb)
	assert.Equal(t, "https://video.bsky.app/watch/did%3Aplc%3Aabc123/bafkreicid/playlist.m3u8", playlist)
}

func TestResumeCursor(t *testing.T) {
	assert.Equal(t, int64(0), firehose.ResumeCursor(0))
	assert.Equal(t, int64(1_700_000_000_000_000-10_000_000), firehose.ResumeCursor(1_700_000_000_000_000))
}
