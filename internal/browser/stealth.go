package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// FingerprintScript normalizes the automation-detectable surface of a
// fresh page so naive bot detectors see a plausible handle: the
// webdriver flag reads as absent, plugin and language lists are
// non-empty, and a permissions query for notifications resolves to a
// neutral "prompt" state instead of exposing the headless default.
const FingerprintScript = `
(function() {
    'use strict';

    // webdriver must read as absent, not false
    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });
    try {
        delete Object.getPrototypeOf(navigator).webdriver;
    } catch (e) {}

    // headless builds ship an empty plugin list
    try {
        const plugins = [
            { name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
            { name: 'Native Client', filename: 'internal-nacl-plugin', description: '' }
        ];
        const pluginArray = Object.create(PluginArray.prototype);
        plugins.forEach((p, i) => {
            const plugin = Object.create(Plugin.prototype);
            Object.defineProperties(plugin, {
                name: { value: p.name, enumerable: true },
                filename: { value: p.filename, enumerable: true },
                description: { value: p.description, enumerable: true },
                length: { value: 1, enumerable: true }
            });
            pluginArray[i] = plugin;
            pluginArray[p.name] = plugin;
        });
        Object.defineProperty(pluginArray, 'length', { value: plugins.length });
        Object.defineProperty(pluginArray, 'item', { value: (i) => pluginArray[i] || null });
        Object.defineProperty(pluginArray, 'namedItem', { value: (n) => pluginArray[n] || null });
        Object.defineProperty(navigator, 'plugins', {
            get: () => pluginArray,
            configurable: true
        });
    } catch (e) {}

    Object.defineProperty(navigator, 'languages', {
        get: () => Object.freeze(['en-US', 'en']),
        configurable: true
    });

    // notifications permission queries resolve to a neutral prompt
    try {
        const originalQuery = Permissions.prototype.query;
        Permissions.prototype.query = function(parameters) {
            if (parameters && parameters.name === 'notifications') {
                return Promise.resolve({ state: 'prompt', onchange: null });
            }
            return originalQuery.call(this, parameters);
        };
    } catch (e) {}

    // window.chrome is missing in some headless contexts
    if (!window.chrome) {
        Object.defineProperty(window, 'chrome', {
            value: { runtime: {} },
            writable: true,
            enumerable: true
        });
    }

    // software GL strings give headless away
    try {
        const patchGetParameter = (proto) => {
            const original = proto.getParameter;
            proto.getParameter = function(param) {
                if (param === 37445) return 'Intel Inc.';
                if (param === 37446) return 'Intel Iris OpenGL Engine';
                return original.call(this, param);
            };
        };
        patchGetParameter(WebGLRenderingContext.prototype);
        patchGetParameter(WebGL2RenderingContext.prototype);
    } catch (e) {}

    if (!navigator.hardwareConcurrency) {
        Object.defineProperty(navigator, 'hardwareConcurrency', {
            get: () => 4,
            configurable: true
        });
    }
})();
`

// NewStealthPage creates a page under the given browser handle with the
// stealth evasions and the fingerprint script registered before any
// document runs.
func NewStealthPage(browser *rod.Browser) (*rod.Page, error) {
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, err
	}

	if _, err := page.EvalOnNewDocument(FingerprintScript); err != nil {
		page.Close()
		return nil, err
	}

	return page, nil
}
