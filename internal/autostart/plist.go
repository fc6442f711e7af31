package autostart

import (
	"fmt"
	"sort"
	"strings"
)

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

func renderLaunchAgentPlist(label, executablePath, configPath, stdoutPath, stderrPath string, env map[string]string) string {
	var args strings.Builder
	fmt.Fprintf(&args, "    <string>%s</string>\n    <string>serve</string>\n", xmlEscape(executablePath))
	if configPath != "" {
		fmt.Fprintf(&args, "    <string>-c</string>\n    <string>%s</string>\n", xmlEscape(configPath))
	}

	var envBlock strings.Builder
	if len(env) > 0 {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		envBlock.WriteString("  <key>EnvironmentVariables</key>\n  <dict>\n")
		for _, k := range keys {
			fmt.Fprintf(&envBlock, "    <key>%s</key>\n    <string>%s</string>\n", xmlEscape(k), xmlEscape(env[k]))
		}
		envBlock.WriteString("  </dict>\n")
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>%s</string>
  <key>ProgramArguments</key>
  <array>
%s  </array>
%s  <key>RunAtLoad</key>
  <true/>
  <key>KeepAlive</key>
  <true/>
  <key>StandardOutPath</key>
  <string>%s</string>
  <key>StandardErrorPath</key>
  <string>%s</string>
</dict>
</plist>
`, xmlEscape(label), args.String(), envBlock.String(), xmlEscape(stdoutPath), xmlEscape(stderrPath))
}

func xmlEscape(v string) string {
	return xmlReplacer.Replace(v)
}
