package firewall

import "regexp"

// Pattern is a compiled detection expression.
type Pattern struct {
	Name        string
	Category    ThreatCategory
	Description string
	Regex       *regexp.Regexp
}

var patterns = compilePatterns()

// Patterns returns the built-in pattern table in scan order.
func Patterns() []Pattern {
	out := make([]Pattern, len(patterns))
	copy(out, patterns)
	return out
}

func compilePatterns() []Pattern {
	return []Pattern{
		// prompt injection
		{Name: "ignore_instructions", Category: PromptInjection,
			Description: "Instruction to ignore prior instructions",
			Regex:       regexp.MustCompile(`(?i)(ignore|disregard|forget|override|bypass)\s+(all\s+)?(previous|prior|above|earlier|original|system)\s+(instructions?|prompts?|rules?|guidelines?|constraints?)`)},
		{Name: "new_instructions", Category: PromptInjection,
			Description: "Injected replacement instructions",
			Regex:       regexp.MustCompile(`(?i)(new|updated|revised|real|actual|true)\s+(instructions?|system\s+prompt|directives?)\s*(:|are)`)},
		{Name: "delimiter_injection", Category: PromptInjection,
			Description: "Chat template delimiter in user content",
			Regex:       regexp.MustCompile(`(?i)(\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>|<\|im_end\|>|<\|endoftext\|>)`)},
		{Name: "indirect_injection_marker", Category: PromptInjection,
			Description: "Embedded directive aimed at the model",
			Regex:       regexp.MustCompile(`(?i)(IMPORTANT:\s*ignore|ATTENTION:\s*disregard|NOTE:\s*override|ADMIN:\s*execute|SYSTEM:\s*new\s+instructions)`)},

		// exfiltration via prompt
		{Name: "credential_file_read", Category: ExfilViaPrompt,
			Description: "Request to read credential or key files",
			Regex:       regexp.MustCompile(`(?i)(cat|read|print|show|dump|upload|send)\s+.{0,40}(~/\.ssh/|id_rsa|id_ed25519|\.aws/credentials|/etc/shadow|\.env\b|\.netrc|\.git-credentials)`)},
		{Name: "secret_to_url", Category: ExfilViaPrompt,
			Description: "Instruction to send secrets to a remote endpoint",
			Regex:       regexp.MustCompile(`(?i)(send|post|upload|exfiltrate|forward|transmit)\s+.{0,60}(api\s+keys?|secrets?|tokens?|passwords?|credentials?|private\s+keys?)\s+.{0,30}(to|at)\s+(https?://|\S+\.\S+)`)},
		{Name: "curl_pipe_exfil", Category: ExfilViaPrompt,
			Description: "Shell pipeline posting local data to a remote host",
			Regex:       regexp.MustCompile(`(?i)(curl|wget|nc|ncat)\s+[^\n]{0,80}(-d\s*@|--data(-binary)?\s*@|--upload-file|\$\(cat\s)`)},
		{Name: "env_dump", Category: ExfilViaPrompt,
			Description: "Request to dump environment variables",
			Regex:       regexp.MustCompile(`(?i)(print|dump|list|show|output)\s+(all\s+)?(the\s+)?(environment\s+variables|env\s+vars)`)},

		// jailbreak
		{Name: "dan_jailbreak", Category: Jailbreak,
			Description: "DAN or unrestricted mode request",
			Regex:       regexp.MustCompile(`(?i)(DAN\s*(mode|\d+)|do\s+anything\s+now|developer\s+mode|god\s+mode|unrestricted\s+mode)`)},
		{Name: "persona_jailbreak", Category: Jailbreak,
			Description: "Claim that safety restrictions are removed",
			Regex:       regexp.MustCompile(`(?i)(you\s+have\s+no\s+(restrictions?|limitations?|filters?|rules?)|all\s+(ethical|safety|content)\s+(guidelines?|filters?|restrictions?)\s+(are|have\s+been)\s+(removed|disabled|lifted))`)},
		{Name: "role_switch", Category: Jailbreak,
			Description: "Role switch into an unfiltered persona",
			Regex:       regexp.MustCompile(`(?i)(you\s+are\s+now|act\s+as|pretend\s+(to\s+be|you\s+are)|roleplay\s+as)\s+(a\s+|an\s+)?(evil|unrestricted|unfiltered|jailbroken|uncensored)`)},
		{Name: "opposite_day", Category: Jailbreak,
			Description: "Inverted-meaning framing",
			Regex:       regexp.MustCompile(`(?i)(opposite\s+day|opposite\s+mode|when\s+i\s+say\s+no\s+i\s+mean\s+yes)`)},

		// tool abuse
		{Name: "destructive_tool_call", Category: ToolAbuse,
			Description: "Tool invocation with destructive intent",
			Regex:       regexp.MustCompile(`(?i)(call\s+the\s+function|execute\s+the\s+tool|run\s+the\s+command|invoke\s+the\s+api|use\s+the\s+tool)\s+.{0,80}(delete|drop|rm\s|shutdown|format|destroy)`)},
		{Name: "recursive_delete", Category: ToolAbuse,
			Description: "Recursive forced delete of a root or home path",
			Regex:       regexp.MustCompile(`rm\s+-(rf|fr|r\s+-f|f\s+-r)\s+(/|~|\$HOME)(\s|$)`)},
		{Name: "remote_script_exec", Category: ToolAbuse,
			Description: "Download piped into a shell",
			Regex:       regexp.MustCompile(`(?i)(curl|wget)\s+[^|\n]{1,200}\|\s*(sudo\s+)?(ba|z)?sh\b`)},
		{Name: "persistence_install", Category: ToolAbuse,
			Description: "Installing persistence through cron or shell profiles",
			Regex:       regexp.MustCompile(`(?i)(crontab\s+-|>>\s*~/\.(bashrc|zshrc|profile)|/etc/cron\.|systemctl\s+enable)`)},

		// system prompt extraction
		{Name: "reveal_system_prompt", Category: SystemPromptExtract,
			Description: "Request to reveal the system prompt",
			Regex:       regexp.MustCompile(`(?i)(reveal|show|display|print|output|repeat|tell\s+me)\s+(me\s+)?(your\s+|the\s+)?(system\s+prompt|initial\s+instructions?|hidden\s+instructions?|original\s+prompt|secret\s+instructions?)`)},
		{Name: "verbatim_preamble", Category: SystemPromptExtract,
			Description: "Request to repeat text above the conversation",
			Regex:       regexp.MustCompile(`(?i)(repeat|print|output)\s+(everything|all|the\s+text)\s+(above|before)\s+(this|the\s+first)`)},
		{Name: "what_are_instructions", Category: SystemPromptExtract,
			Description: "Question about the model's configured instructions",
			Regex:       regexp.MustCompile(`(?i)what\s+(are|were)\s+your\s+(original\s+|initial\s+|exact\s+)?(instructions|rules|guidelines)`)},
	}
}
