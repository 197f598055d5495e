package activation

import "fmt"

// buttonContaining matches a button whose text includes the given label.
func buttonContaining(label string) string {
	return fmt.Sprintf(`//button[contains(., %s)]`, xpathString(label))
}

// buttonExact matches a button whose normalized text equals the label.
func buttonExact(label string) string {
	return fmt.Sprintf(`//button[normalize-space(.)=%s]`, xpathString(label))
}

// xpathString quotes a literal for use inside an XPath expression.
func xpathString(s string) string {
	return "'" + s + "'"
}

// Page queries for the Onet login and settings flow. The cookie banner and
// the compose control each have two language variants that are treated as
// equivalent conditions.
var (
	queryCookieAcceptPL = buttonContaining("Przejdź do serwisu")
	queryCookieAcceptEN = buttonContaining("accept and close")

	queryEmailInput    = `//input[@type='email' or @name='email' or @aria-label='E-mail address']`
	queryNextButton    = buttonExact("Next")
	queryPasswordInput = `//input[@type='password']`
	queryLoginButton   = buttonExact("Log in")

	queryMFARemindLater = buttonContaining("Remind me later")
	querySkipButton     = buttonExact("Skip")

	queryComposePL = buttonContaining("Napisz wiadomość")
	queryComposeEN = buttonContaining("Compose")

	queryMenuButton   = `//button[@aria-label='Otwórz menu aplikacji' or contains(., 'Otwórz menu aplikacji')]`
	querySettingsLink = `//a[contains(., 'Ustawienia')]`

	queryMainAccountTab = buttonContaining("Konto główne")

	queryPOP3Toggle  = `label[for="popCheck"]`
	queryIMAPToggle  = `label[for="imapCheck"]`
	queryPOP3Enabled = `//label[@for='popCheck']//span[normalize-space(.)='Włączony']`
	queryIMAPEnabled = `//label[@for='imapCheck']//span[normalize-space(.)='Włączony']`
)

// mfaURLFragment marks the multi-factor interstitial, which redirects to a
// distinct path instead of rendering on the login page.
const mfaURLFragment = "konto.onet.pl/mfa"

// disabledMarker is the toggle label text indicating the protocol is off.
const disabledMarker = "Wyłączony"
