package plan

import "regexp"

// =============================================================================
// Variable Substitution Functions
// =============================================================================

// varPlaceholderRegex matches the ${VAR} and ${VAR:-default} placeholders a
// stack document may carry in its environment values. Group 1 is the variable
// name, group 2 the optional default after ":-".
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// SubstituteVariables expands placeholders in a document value using the
// stack's stored variables. A ${VAR} with no stored value and no default is
// kept verbatim, so a typo'd name is visible in the rendered plan rather than
// silently becoming empty.
//
// Examples:
//
//	SubstituteVariables("${MODEL_SERVER_HOST}", map[string]string{"MODEL_SERVER_HOST": "inference"})
//	// Returns: "inference"
//
//	SubstituteVariables("${WEB_PORT:-3000}", map[string]string{})
//	// Returns: "3000"
//
//	SubstituteVariables("${MISPELLED}", map[string]string{})
//	// Returns: "${MISPELLED}"
func SubstituteVariables(value string, variables map[string]string) string {
	if variables == nil {
		variables = make(map[string]string)
	}

	return varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		submatch := varPlaceholderRegex.FindStringSubmatch(match)
		if len(submatch) >= 2 {
			varName := submatch[1]
			if val, ok := variables[varName]; ok {
				return val
			}
			// Return default if specified (even empty string)
			if len(submatch) >= 3 && submatch[2] != "" {
				return submatch[2]
			}
			// ${VAR:-} with an empty default substitutes to empty
			if len(submatch) >= 3 && len(match) > len(varName)+4 {
				if regexp.MustCompile(`\$\{` + varName + `:-\}`).MatchString(match) {
					return ""
				}
			}
		}
		return match // Return original if no substitution
	})
}
