// Command desktop wraps the playground in a native window. Share links are
// written to the system clipboard directly.
package main

import (
	"os"
	goruntime "runtime"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
)

func main() {
	app := NewApp()

	err := wails.Run(&options.App{
		Title:            "Result Playground",
		Width:            1280,
		Height:           800,
		MinWidth:         800,
		MinHeight:        600,
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		Menu:             createMenu(app),
		AssetServer: &assetserver.Options{
			Handler: app.GetHandler(),
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []any{
			app,
		},
		Mac: &mac.Options{
			About: &mac.AboutInfo{
				Title:   "Result Playground",
				Message: "Try the Result type in the browser and share the buffer as a link.",
			},
		},
	})
	if err != nil {
		println("Error:", err.Error())
		os.Exit(1)
	}
}

func createMenu(app *App) *menu.Menu {
	appMenu := menu.NewMenu()

	fileMenu := appMenu.AddSubmenu("File")
	fileMenu.AddText("New Playground", keys.CmdOrCtrl("n"), func(*menu.CallbackData) {
		if err := app.NewPlayground(); err != nil {
			app.logger.Error("new playground failed", zap.Error(err))
		}
	})
	fileMenu.AddText("Open Docs Directory...", keys.CmdOrCtrl("o"), func(*menu.CallbackData) {
		if _, err := app.OpenDirectory(); err != nil {
			app.logger.Error("open directory failed", zap.Error(err))
		}
	})
	if goruntime.GOOS != "darwin" {
		fileMenu.AddSeparator()
		fileMenu.AddText("Exit", keys.OptionOrAlt("F4"), func(*menu.CallbackData) {
			runtime.Quit(app.ctx)
		})
	}

	// The webview needs the standard edit roles for copy and paste on macOS.
	if goruntime.GOOS == "darwin" {
		appMenu.Append(menu.EditMenu())
	}

	viewMenu := appMenu.AddSubmenu("View")
	viewMenu.AddText("Reload", keys.CmdOrCtrl("r"), func(*menu.CallbackData) {
		runtime.WindowReload(app.ctx)
	})
	viewMenu.AddText("Toggle Full Screen", keys.Key("F11"), func(*menu.CallbackData) {
		if runtime.WindowIsFullscreen(app.ctx) {
			runtime.WindowUnfullscreen(app.ctx)
		} else {
			runtime.WindowFullscreen(app.ctx)
		}
	})

	return appMenu
}
