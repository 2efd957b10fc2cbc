package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const screenCaptureGuide = `How to look at the C64 screen:

1. Start with capture_screen. It detects the video mode from the VIC-II
   registers and renders the screen in that mode.
2. If the picture looks like garbage, call capture_all_screen_modes. It
   renders the same memory as Standard Text, Multicolor Text, Extended
   Background Color, Standard Bitmap and Multicolor Bitmap so you can pick
   the one that makes sense.
3. Once you know the right mode, use capture_screen_with_mode with it.

Common reasons the detected mode is wrong:
- raster interrupts switch modes in the middle of the frame
- the program uses a custom VIC-II configuration or memory bank
- the display has not been initialized yet

In text modes capture_screen also returns the screen as text. Use
read_screen_text for the plain text of the screen and get_screen_mode for
the raw VIC-II layout.`

const basicProgramGuide = `How to get a BASIC program onto the C64:

- Prefer enter_basic_program. It tokenizes the program, writes it straight
  into memory at $0801 and fixes the BASIC pointers, which is much faster
  and more reliable than typing it. Set auto_run to start it and list to
  show it.
- Write one numbered line per text line, for example:
    10 PRINT "HELLO"
    20 GOTO 10
  Line numbers must be increasing and at most 63999. Keywords may be
  written in upper or lower case.
- tokenize_basic shows the bytes a program turns into without touching the
  machine. list_basic_program reads back what is in memory.
- Use type_text for short direct-mode commands. Special keys are written as
  {RETURN}, {CLR}, {HOME}, {F1} and so on; send_key presses a single one.
- After RUN, check the result with read_screen_text or capture_screen.`

func userPrompt(text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Messages: []*mcp.PromptMessage{{Role: "user", Content: &mcp.TextContent{Text: text}}},
	}
}

func (s *Server) registerPrompts() {
	s.server.AddPrompt(&mcp.Prompt{
		Name:        "screen_capture_guide",
		Description: "How to capture and interpret the C64 screen",
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		res := userPrompt(screenCaptureGuide)
		res.Description = "C64 screen capture guide"
		return res, nil
	})

	s.server.AddPrompt(&mcp.Prompt{
		Name:        "basic_program_guide",
		Description: "How to write, enter and run C64 BASIC programs",
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		res := userPrompt(basicProgramGuide)
		res.Description = "C64 BASIC program guide"
		return res, nil
	})
}
