package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DocTypeResume    = "Resume/CV"
	DocTypeMeeting   = "Meeting Notes"
	DocTypeEmail     = "Email"
	DocTypeLegal     = "Legal Document"
	DocTypeResearch  = "Research Paper"
	DocTypeReport    = "Business Report"
	DocTypeTechnical = "Technical Documentation"
	DocTypeProject   = "Project Plan"
	DocTypeFinancial = "Financial Report"
	DocTypeAcademic  = "Academic Paper"
	DocTypeNews      = "News Article"
	DocTypeGeneral   = "General Document"

	truncatedMarker = "\n\n[Text truncated due to length limits]"
	maxQuestions    = 7
)

var docTypes = []string{
	DocTypeResume, DocTypeMeeting, DocTypeEmail, DocTypeLegal, DocTypeResearch,
	DocTypeReport, DocTypeTechnical, DocTypeProject, DocTypeFinancial,
	DocTypeAcademic, DocTypeNews, DocTypeGeneral,
}

var entityCategories = []string{"people", "organizations", "dates", "locations", "numbers", "technologies"}

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Manager builds prompts for the document assistant and sends them to the
// configured generator.
type Manager struct {
	generator IGenerator
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, cfg ManagerConfig) *Manager {
	return &Manager{generator: generator, cfg: cfg}
}

func (m *Manager) Available() bool {
	return m != nil && m.generator != nil
}

// DetectDocumentType classifies text into one of the known document types.
// Any failure yields DocTypeGeneral.
func (m *Manager) DetectDocumentType(ctx context.Context, text string) string {
	if !m.Available() {
		return DocTypeGeneral
	}
	prompt := fmt.Sprintf(`Analyze the following text and determine what type of document this is.

Choose from these categories:
- %s

Text sample (first 1000 characters):
%s

Respond with just the document type category, nothing else.`, strings.Join(docTypes, "\n- "), truncate(text, 1000))
	out, err := m.generateText(ctx, prompt, GenerateOptions{Temperature: 0.1, MaxTokens: 50})
	if err != nil {
		return DocTypeGeneral
	}
	return NormalizeDocType(out)
}

// NormalizeDocType maps a free-form model answer onto a known type.
func NormalizeDocType(answer string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(answer), "\n", 2)[0])
	line = strings.Trim(line, "*`\"'.- ")
	lower := strings.ToLower(line)
	for _, t := range docTypes {
		if strings.EqualFold(t, line) {
			return t
		}
	}
	switch {
	case lower == "":
		return DocTypeGeneral
	case strings.Contains(lower, "resume") || strings.Contains(lower, "cv"):
		return DocTypeResume
	case strings.Contains(lower, "meeting"):
		return DocTypeMeeting
	case strings.Contains(lower, "legal") || strings.Contains(lower, "contract") || strings.Contains(lower, "agreement"):
		return DocTypeLegal
	case strings.Contains(lower, "research"):
		return DocTypeResearch
	case strings.Contains(lower, "academic"):
		return DocTypeAcademic
	case strings.Contains(lower, "financ"):
		return DocTypeFinancial
	case strings.Contains(lower, "email"):
		return DocTypeEmail
	}
	return DocTypeGeneral
}

// SummarizeAndTasks produces a markdown summary with action items tailored
// to docType.
func (m *Manager) SummarizeAndTasks(ctx context.Context, text, docType string) (string, error) {
	if !m.Available() {
		return "", ErrUnavailable
	}
	out, err := m.generateText(ctx, summaryPrompt(text, docType), GenerateOptions{Temperature: 0.4, MaxTokens: 2000})
	if err != nil {
		return "", err
	}
	footer := fmt.Sprintf(`

---
### Document Insights
- **Detected Type**: %s
- **Word Count**: ~%d words`, docType, len(strings.Fields(text)))
	return out + footer, nil
}

func summaryPrompt(text, docType string) string {
	lower := strings.ToLower(docType)
	switch {
	case strings.Contains(lower, "resume") || strings.Contains(lower, "cv"):
		return fmt.Sprintf(`You are analyzing a RESUME/CV. Provide:

1. **Document Type**: Resume/CV Analysis
2. **Summary**: 3-4 lines covering key qualifications, experience level, and main skills
3. **Key Information**:
   - Years of experience
   - Primary skills/technologies
   - Education level
   - Notable achievements
4. **Actionable Items**:
   - [ ] Update contact information if needed
   - [ ] Review for formatting consistency
   - [ ] Add quantifiable achievements
   - [ ] Tailor for specific job applications

Document text:
%s`, truncate(text, 2500))
	case strings.Contains(lower, "meeting"):
		return fmt.Sprintf(`You are analyzing MEETING NOTES. Provide:

1. **Document Type**: Meeting Notes Analysis
2. **Summary**: 3-4 lines covering meeting purpose, key decisions, and outcomes
3. **Key Information**:
   - Meeting date and attendees (if mentioned)
   - Main topics discussed
   - Decisions made
   - Next steps identified
4. **Action Items**:
   - Extract all tasks mentioned with due dates and assignees
   - Format as: [ ] Task Description (Due: Date) - Assigned to: Person

Document text:
%s`, truncate(text, 2500))
	case strings.Contains(lower, "legal") || strings.Contains(lower, "contract") || strings.Contains(lower, "agreement"):
		return fmt.Sprintf(`You are analyzing a LEGAL DOCUMENT. Provide:

1. **Document Type**: Legal Document Analysis
2. **Summary**: 3-4 lines covering document purpose, key terms, and parties involved
3. **Key Information**:
   - Document type and purpose
   - Parties involved
   - Key terms and conditions
   - Important dates and deadlines
4. **Important Items**:
   - [ ] Review all terms and conditions
   - [ ] Note important dates and deadlines
   - [ ] Identify obligations and responsibilities
   - [ ] Consider legal review if needed

Document text:
%s`, truncate(text, 3500))
	case strings.Contains(lower, "research") || strings.Contains(lower, "academic") || strings.Contains(lower, "paper"):
		return fmt.Sprintf(`You are analyzing a RESEARCH/ACADEMIC PAPER. Provide:

1. **Document Type**: Research Paper Analysis
2. **Summary**: 3-4 lines covering research topic, methodology, and key findings
3. **Key Information**:
   - Research topic and objectives
   - Methodology used
   - Key findings and conclusions
   - Authors and publication info
4. **Follow-up Items**:
   - [ ] Review methodology and data
   - [ ] Analyze conclusions and implications
   - [ ] Check citations and references
   - [ ] Consider practical applications

Document text:
%s`, truncate(text, 3000))
	}
	return fmt.Sprintf(`You are analyzing a %s. Provide:

1. **Document Type**: %s
2. **Summary**: 4-5 lines capturing the main points and purpose of this document
3. **Key Information**:
   - Main topics covered
   - Important dates, numbers, or deadlines
   - Key people or entities mentioned
   - Critical decisions or conclusions
4. **Actionable Items**:
   - Extract any tasks, deadlines, or action items mentioned
   - Format as: [ ] Task Description (Due Date if known) - Assigned to (if known)
   - If no specific tasks found, suggest relevant follow-up actions

Document text:
%s

If the document contains no obvious actionable tasks, provide useful follow-up suggestions based on the document type and content.`,
		strings.ToUpper(docType), docType, truncate(text, 3000))
}

// Answer replies to question using only contextBlock.
func (m *Manager) Answer(ctx context.Context, question, contextBlock string) (string, error) {
	if !m.Available() {
		return "", ErrUnavailable
	}
	prompt := fmt.Sprintf(`You are an intelligent AI assistant helping the user find specific information from their uploaded documents.

Based on the following relevant content from the user's documents:

%s

Please answer this specific question: %s

Instructions:
- Answer the question directly and specifically
- Use only the information provided in the context above
- If the context doesn't contain enough information to answer the question, say so
- Don't provide a document summary unless specifically asked
- Be concise and focused on the user's question`, contextBlock, question)
	return m.generateText(ctx, prompt, GenerateOptions{Temperature: 0.3, MaxTokens: 1500})
}

// ExtractEntities returns named entities grouped by category.
func (m *Manager) ExtractEntities(ctx context.Context, text string) (map[string][]string, error) {
	if !m.Available() {
		return nil, ErrUnavailable
	}
	prompt := fmt.Sprintf(`Extract key entities from this text.

Text:
%s

Return a JSON object with exactly these keys: %s.
Each value is an array of strings; use an empty array when nothing is found.
Output ONLY the JSON object.`, truncate(text, 2000), strings.Join(entityCategories, ", "))
	out, err := m.generateText(ctx, prompt, GenerateOptions{Temperature: 0.2, MaxTokens: 800})
	if err != nil {
		return nil, err
	}
	return parseEntities(out)
}

// SuggestQuestions returns up to 7 questions a reader might ask about text.
func (m *Manager) SuggestQuestions(ctx context.Context, text string) ([]string, error) {
	if !m.Available() {
		return nil, ErrUnavailable
	}
	prompt := fmt.Sprintf(`Based on this document, generate 5-7 intelligent questions that someone might want to ask about it.
Make the questions specific and useful for understanding or working with this content.

Document sample:
%s

Format your response as a numbered list of questions only.`, truncate(text, 1500))
	out, err := m.generateText(ctx, prompt, GenerateOptions{Temperature: 0.6, MaxTokens: 500})
	if err != nil {
		return nil, err
	}
	return parseQuestions(out), nil
}

func (m *Manager) generateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if m.cfg.MaxInputChars > 0 && len(prompt) > m.cfg.MaxInputChars {
		prompt = truncate(prompt, m.cfg.MaxInputChars) + truncatedMarker
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func stripFence(output string) string {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

func parseEntities(output string) (map[string][]string, error) {
	clean := stripFence(output)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}
	var raw map[string][]string
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("parse entities: %w", err)
	}
	out := make(map[string][]string, len(entityCategories))
	for _, category := range entityCategories {
		out[category] = []string{}
	}
	for key, values := range raw {
		category := strings.ToLower(strings.TrimSpace(key))
		if _, ok := out[category]; !ok {
			continue
		}
		seen := make(map[string]bool)
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			out[category] = append(out[category], v)
		}
	}
	return out, nil
}

func parseQuestions(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case line[0] >= '0' && line[0] <= '9':
			if i := strings.IndexAny(line, ".)"); i >= 0 {
				line = line[i+1:]
			}
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"), strings.HasPrefix(line, "•"):
			line = strings.TrimLeft(line, "-*• ")
		default:
			continue
		}
		line = strings.Trim(strings.TrimSpace(line), "*")
		if strings.HasSuffix(line, "?") {
			out = append(out, line)
		}
		if len(out) == maxQuestions {
			break
		}
	}
	return out
}
