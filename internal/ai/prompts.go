package ai

const analysisPrompt = `Analyze this wine bottle label image and extract as much information as possible.

Return a JSON object with the following fields (use null for any fields you cannot determine):

{
    "name": "Full wine name",
    "producer": "Winery/Producer name",
    "vintage": 2020,
    "country": "Country of origin",
    "region": "Wine region (e.g., Napa Valley, Burgundy)",
    "appellation": "Specific appellation/AOC/DOC if visible",
    "style": "Red|White|Rosé|Sparkling|Dessert|Fortified",
    "grape_varieties": ["Grape1", "Grape2"],
    "alcohol_percentage": 13.5,
    "drinking_window_start": 2024,
    "drinking_window_end": 2030,
    "score": 88,
    "description": "Brief description of the wine and producer",
    "tasting_notes": {
        "aromas": ["aroma1", "aroma2"],
        "flavors": ["flavor1", "flavor2"],
        "body": "Light|Medium|Full",
        "tannins": "Low|Medium|High",
        "acidity": "Low|Medium|High",
        "finish": "Short|Medium|Long"
    },
    "needs_clarification": false,
    "clarification_questions": []
}

Guidelines:
- vintage is an integer year, or null for non-vintage wines.
- drinking_window_start and drinking_window_end are the estimated first and last good years to drink.
- score is a conservative 0-100 estimate based on typical quality for the producer, region and vintage.
- Only include information you can see or reasonably infer from the label.
- If the image is not a wine bottle or label, return {"error": "Not a wine label image"}.

Wine style:
- Many appellations (Burgundy villages such as Santenay, Meursault or Pommard) produce both red and white
  wines, and many producers use nearly identical labels for both.
- If you cannot see the wine color and the appellation produces both styles, set "needs_clarification"
  to true, add "Is this wine red or white?" to clarification_questions and set "style" to null.
- Only set the style when the color is visible, the label states it, or the grape is clearly one color.

Return ONLY the JSON object, no additional text.`

// clarifiedSuffix is appended to analysisPrompt once the user has confirmed the style.
const clarifiedSuffix = `

The owner has confirmed this wine is %s. Use that style, do not ask about it again, and set
"needs_clarification" to false unless something other than the style is still uncertain.`

const identifyPrompt = `Look at this wine bottle image and identify the wine.

Return a JSON object with just the key identifying information:

{
    "name": "Full wine name",
    "producer": "Winery/Producer name",
    "vintage": 2020
}

vintage is an integer year, or null for non-vintage wines.
If you cannot identify the wine, return {"error": "Cannot identify wine"}.

Return ONLY the JSON object, no additional text.`

const pairingPrompt = `I am cooking: %s

These are the wines currently in my cellar, as JSON:

%s

Suggest up to three wines from this list that pair well with the dish, best first. Return a JSON object:

{
    "suggestions": [
        {"wine_id": 1, "wine_name": "Name from the list", "vintage": 2018, "match_level": "perfect|good|acceptable", "why": "One or two sentences"}
    ],
    "tip": "Optional serving tip"
}

Only use wine_id values from the list. If nothing fits, return an empty suggestions array and explain in tip.

Return ONLY the JSON object, no additional text.`
