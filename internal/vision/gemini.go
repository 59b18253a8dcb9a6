// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements the Gemini caption backend. It asks the model
// for structured JSON per image (or per clip group) and flattens each
// item into one searchable caption line. The client handle is injected;
// this file never touches credentials or ambient project settings.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// promptVersion is baked into the cache key: editing the prompt below
// must re-caption everything.
const promptVersion = 4

const imagePromptBody = "你是短视频剪辑助手（偏动漫/影视解说）。你将看到一批截图：每张图独立分析（不要假设相邻图片属于同一切片）。\n" +
	"任务：为【每一张图】输出可检索、可复用、可匹配的结构化标签（用于后续语义匹配剪辑）。\n" +
	"输出要求：只输出严格 JSON（不要 markdown/解释/多余文字）。\n" +
	"JSON 的 key 为图片序号 0..N-1。每张图的 value 为对象，字段如下：\n" +
	"1) summary: 一句话客观描述（不写剧情推断，只写你看到的画面）\n" +
	"2) title: 作品名/IP（如果能识别就写；不确定可空）\n" +
	"3) characters: 角色名列表（如果能识别就写；不确定可空）\n" +
	"4) who: 人物类型/数量（不要猜具体人名，可写 男主/女主/少年/少女/怪物/路人/群像 等）\n" +
	"5) action: 动作/事件（动词短语，尽量具体，如 醒来/受伤/流血/拿枪/开枪/翻书/翻笔记/对话/追逐/打斗）\n" +
	"6) scene: 场景地点/环境（室内/室外 + 具体地点，如 房间/桌边/街道/森林/战场/宫殿）\n" +
	"7) objects: 关键物体/道具（手枪/左轮/血迹/书/笔记/纸张/信封/钥匙/徽章 等）\n" +
	"8) mood: 情绪氛围（紧张/压抑/恐惧/震撼/温馨/搞笑 等）\n" +
	"9) shot: 镜头语言（特写/中景/远景/俯视/仰视/跟拍/对话镜头/大场景/快切）\n" +
	"10) tags: 12-18 个【可复用检索词】（只要词/短语，不要句子；避免同义堆砌）\n" +
	"11) flags: 需要过滤或降权的标记（数组，可包含：ad/intro/outro/credit/subtitle_heavy/ui_overlay/watermark/logo/qr_code）\n" +
	"注意：tags 一定要包含能稳定检索的道具/动作词（例如：枪、血、翻书、笔记、醒来）。\n"

const groupPromptBody = "你是短视频剪辑助手（偏动漫/影视解说）。你将看到多个切片，每个切片包含多帧截图。\n" +
	"任务：为【每一个切片】输出可检索、可复用、可匹配的结构化标签（用于后续语义匹配剪辑）。\n" +
	"输入说明：每个切片开始会有一行 'CLIP i'，后面跟随该切片的若干帧图片。\n" +
	"输出要求：只输出严格 JSON（不要 markdown/解释/多余文字）。\n" +
	"JSON 的 key 为切片序号 0..K-1。每个 value 为对象，字段与单图相同：summary/title/characters/who/action/scene/objects/mood/shot/tags/flags。\n" +
	"注意：tags 必须包含可稳定检索的道具/动作词（如：枪、血、翻书、笔记、醒来）。\n"

// GeminiCaptionProvider captions frames through a Gemini model, rate
// limited and with bounded retries.
type GeminiCaptionProvider struct {
	ModelName   string
	ModelHandle *genai.Models
	RateLimit   *rate.Limiter
	MaxRetries  int

	// ProjectHint names the work/IP the footage belongs to; it lets the
	// model commit to titles and character names instead of hedging.
	ProjectHint string
}

// NewGeminiCaptionProvider builds the provider around an existing
// models handle with a requests-per-second ceiling.
func NewGeminiCaptionProvider(handle *genai.Models, modelName string, requestsPerSecond int) *GeminiCaptionProvider {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &GeminiCaptionProvider{
		ModelName:   modelName,
		ModelHandle: handle,
		RateLimit:   rate.NewLimiter(rate.Every(time.Second), requestsPerSecond),
		MaxRetries:  3,
	}
}

// CacheKey changes whenever the backend, model, prompt, or project
// hint changes, forcing a full re-caption.
func (p *GeminiCaptionProvider) CacheKey() string {
	hint := strings.TrimSpace(p.ProjectHint)
	if len(hint) > 80 {
		hint = hint[:80]
	}
	return fmt.Sprintf("gemini|model=%s|prompt_v=%d|hint=%s", p.ModelName, promptVersion, hint)
}

// CaptionImages captions each image independently, one request for the
// whole batch.
func (p *GeminiCaptionProvider) CaptionImages(ctx context.Context, imagePaths []string) ([]string, error) {
	if len(imagePaths) == 0 {
		return nil, nil
	}
	parts := make([]*genai.Part, 0, len(imagePaths))
	for _, path := range imagePaths {
		blob, err := imagePart(path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, blob)
	}
	return p.request(ctx, imagePromptBody, parts, len(imagePaths))
}

// CaptionImageGroups captions each group of frames into one string,
// giving the model multi-frame context per clip.
func (p *GeminiCaptionProvider) CaptionImageGroups(ctx context.Context, groups [][]string) ([]string, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	var parts []*genai.Part
	for i, paths := range groups {
		parts = append(parts, &genai.Part{Text: fmt.Sprintf("CLIP %d", i)})
		for _, path := range paths {
			blob, err := imagePart(path)
			if err != nil {
				return nil, err
			}
			parts = append(parts, blob)
		}
	}
	return p.request(ctx, groupPromptBody, parts, len(groups))
}

// request sends one captioning call and parses the indexed JSON reply
// into want caption strings.
func (p *GeminiCaptionProvider) request(ctx context.Context, prompt string, imageParts []*genai.Part, want int) ([]string, error) {
	hint := strings.TrimSpace(p.ProjectHint)
	if hint != "" {
		prompt = fmt.Sprintf("本项目作品/IP 提示：%s\n%s", hint, prompt)
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: append([]*genai.Part{{Text: "请按要求输出JSON。"}}, imageParts...),
	}}
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0.2),
		ResponseMIMEType:  "application/json",
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: prompt}}},
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := p.RateLimit.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := p.ModelHandle.GenerateContent(ctx, p.ModelName, contents, config)
		if err == nil {
			return parseCaptionJSON(responseText(resp), want)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Second):
		}
	}
	return nil, fmt.Errorf("caption request failed after %d retries: %w", p.MaxRetries, lastErr)
}

// imagePart reads a frame file into an inline image part.
func imagePart(path string) (*genai.Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: data}}, nil
}

// responseText concatenates the text parts of every candidate and
// strips a markdown fence if the model added one anyway.
func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	value := strings.TrimSpace(b.String())
	value = strings.TrimPrefix(value, "```json")
	value = strings.TrimSuffix(value, "```")
	return strings.TrimSpace(value)
}

// captionItem is the per-image structure the prompt asks for. Fields
// accept either a string or a list of strings.
type captionItem struct {
	Summary    flexList `json:"summary"`
	Title      flexList `json:"title"`
	Characters flexList `json:"characters"`
	Who        flexList `json:"who"`
	Action     flexList `json:"action"`
	Scene      flexList `json:"scene"`
	Objects    flexList `json:"objects"`
	Mood       flexList `json:"mood"`
	Shot       flexList `json:"shot"`
	Tags       flexList `json:"tags"`
	Flags      flexList `json:"flags"`
}

// flexList tolerates models answering "a, b" where a list was asked.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = cleanList(list)
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		one = strings.ReplaceAll(one, "，", ",")
		*f = cleanList(strings.Split(one, ","))
		return nil
	}
	// Anything else (number, object) is dropped rather than failing the
	// whole caption batch.
	*f = nil
	return nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseCaptionJSON decodes the indexed reply and formats one caption
// line per expected index. A missing index yields an empty caption.
func parseCaptionJSON(text string, want int) ([]string, error) {
	// Pull the first JSON object if the model wrapped it in prose.
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}
	var items map[string]captionItem
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("caption reply is not indexed JSON: %w", err)
	}
	out := make([]string, want)
	for i := 0; i < want; i++ {
		if item, ok := items[fmt.Sprint(i)]; ok {
			out[i] = formatCaptionItem(item)
		}
	}
	return out, nil
}

// formatCaptionItem flattens a structured item into one caption line.
// The caption part feeds the embedder; the FLAGS suffix feeds content
// filtering only.
func formatCaptionItem(item captionItem) string {
	join := func(l []string) string { return strings.Join(l, "、") }
	var parts []string
	add := func(label string, l []string, limit int) {
		if len(l) == 0 {
			return
		}
		if limit > 0 && len(l) > limit {
			l = l[:limit]
		}
		parts = append(parts, label+":"+join(l))
	}
	add("作品", item.Title, 0)
	add("角色", item.Characters, 8)
	add("概述", item.Summary, 0)
	add("人物", item.Who, 0)
	add("动作", item.Action, 0)
	add("场景", item.Scene, 0)
	add("物体", item.Objects, 0)
	add("情绪", item.Mood, 0)
	add("镜头", item.Shot, 0)
	add("标签", item.Tags, 18)
	caption := strings.TrimSpace(strings.Join(parts, "；"))

	flagSet := make(map[string]bool)
	for _, f := range item.Flags {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			flagSet[f] = true
		}
	}
	if len(flagSet) == 0 {
		return caption
	}
	flags := make([]string, 0, len(flagSet))
	for f := range flagSet {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return caption + flagsSuffix + strings.Join(flags, ",")
}
