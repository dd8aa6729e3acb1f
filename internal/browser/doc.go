// Package browser drives headless Chrome through chromedp. A Launcher starts
// one browser process per Session; a Session navigates, captures full-page
// screenshots in its device viewport, and extracts the rendered page's links.
package browser
